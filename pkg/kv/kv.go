// Package kv is a small key-value layer with path keys. Nova keeps its chat
// history in it: badger on disk for the CLI, an in-memory map for tests.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form.
const Separator = "/"

// Key is a path of segments, e.g. Key{"session", "0f3a..."}.
type Key []string

// String returns the encoded key.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

// validate rejects empty keys and segments that would change the path when
// encoded.
func (k Key) validate() error {
	if len(k) == 0 {
		return errors.New("kv: empty key")
	}
	for _, seg := range k {
		if seg == "" || strings.Contains(seg, Separator) {
			return fmt.Errorf("kv: invalid key segment %q in %s", seg, k)
		}
	}
	return nil
}

// prefix returns the encoded prefix that matches keys strictly below k.
// An empty k matches everything.
func (k Key) prefix() string {
	if len(k) == 0 {
		return ""
	}
	return k.String() + Separator
}

func parseKey(s string) Key {
	return Key(strings.Split(s, Separator))
}

// Entry is one key and its value.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound when the key is missing.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields the entries below prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	Close() error
}
