package history

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/nova/pkg/kv"
)

// DefaultTitle names a session until its first message arrives.
const DefaultTitle = "New Conversation"

// titleLength is the number of characters of the first message kept in a
// derived title.
const titleLength = 30

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("history: session not found")

const sessionPrefix = "session"

func sessionKey(id string) kv.Key {
	return kv.Key{sessionPrefix, id}
}

// Store keeps sessions in a kv.Store.
type Store struct {
	kv  kv.Store
	now func() time.Time

	// mu serializes read-modify-write of session records.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a Store over db.
func NewStore(db kv.Store, opts ...Option) *Store {
	s := &Store{kv: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts an empty session titled DefaultTitle.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.kv.Get(ctx, sessionKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	var sess Session
	if err := msgpack.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", id, err)
	}
	return &sess, nil
}

// List returns all sessions, newest first.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	var out []*Session
	for entry, err := range s.kv.List(ctx, kv.Key{sessionPrefix}) {
		if err != nil {
			return nil, fmt.Errorf("history: list: %w", err)
		}
		var sess Session
		if err := msgpack.Unmarshal(entry.Value, &sess); err != nil {
			return nil, fmt.Errorf("history: decode %s: %w", entry.Key, err)
		}
		out = append(out, &sess)
	}
	slices.SortStableFunc(out, func(a, b *Session) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("history: delete %s: %w", id, err)
	}
	return nil
}

// AppendMessages adds messages to a session. While the session still has
// the default title, the title is derived from its first message.
func (s *Store) AppendMessages(ctx context.Context, id string, msgs ...Message) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = append(sess.Messages, msgs...)
	if sess.Title == DefaultTitle && len(sess.Messages) > 0 {
		if t := Title(sess.Messages[0].Content); t != "" {
			sess.Title = t
		}
	}
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) put(ctx context.Context, sess *Session) error {
	data, err := msgpack.Marshal(sess)
	if err != nil {
		return fmt.Errorf("history: encode %s: %w", sess.ID, err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.ID), data); err != nil {
		return fmt.Errorf("history: put %s: %w", sess.ID, err)
	}
	return nil
}

// Title derives a session title from a message: its first 30 characters,
// followed by "..." when the message is longer.
func Title(content string) string {
	if utf8.RuneCountInString(content) <= titleLength {
		return content
	}
	return string([]rune(content)[:titleLength]) + "..."
}
