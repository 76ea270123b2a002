package history

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks local notices such as request failures. They are
	// shown but never sent to the model.
	RoleSystem Role = "system"
)

// Source is a web page that grounded an answer.
type Source struct {
	Title string `json:"title" msgpack:"title"`
	URI   string `json:"uri" msgpack:"uri"`
}

// Message is one chat message.
type Message struct {
	ID      string `json:"id" msgpack:"id"`
	Role    Role   `json:"role" msgpack:"role"`
	Content string `json:"content" msgpack:"content"`

	// Image is an attached image as a data URI.
	Image string `json:"image,omitempty" msgpack:"image,omitempty"`

	Sources []Source `json:"sources,omitempty" msgpack:"sources,omitempty"`

	// CreatedAt is unix milliseconds.
	CreatedAt int64 `json:"created_at" msgpack:"created_at"`
}

// NewMessage returns a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// WithImage returns a copy of m with an attached image.
func (m Message) WithImage(dataURI string) Message {
	m.Image = dataURI
	return m
}

// WithSources returns a copy of m with grounding sources.
func (m Message) WithSources(sources []Source) Message {
	m.Sources = sources
	return m
}

// Session is a conversation.
type Session struct {
	ID       string    `json:"id" msgpack:"id"`
	Title    string    `json:"title" msgpack:"title"`
	Messages []Message `json:"messages" msgpack:"messages"`

	// CreatedAt is unix milliseconds.
	CreatedAt int64 `json:"created_at" msgpack:"created_at"`
}
