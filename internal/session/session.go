// Package session stores conversation sessions and their messages.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/generation"
)

// Message is one stored conversation turn.
type Message struct {
	MessageID string              `json:"message_id" db:"message_id"`
	SessionID string              `json:"session_id,omitempty" db:"session_id"`
	Role      string              `json:"role" db:"role"`
	Content   string              `json:"content" db:"content"`
	Sources   []generation.Source `json:"sources,omitempty"`
	Timestamp string              `json:"timestamp" db:"timestamp"`
}

// Info summarizes a session for listings.
type Info struct {
	SessionID    string `json:"session_id" db:"session_id"`
	CreatedAt    string `json:"created_at" db:"created_at"`
	UpdatedAt    string `json:"updated_at" db:"updated_at"`
	MessageCount int    `json:"message_count" db:"message_count"`
	FirstMessage string `json:"first_message,omitempty" db:"first_message"`
}

// Store persists sessions and messages.
type Store interface {
	// CreateSession registers a session id. Creating an existing session is
	// a no-op.
	CreateSession(ctx context.Context, sessionID string) error
	// SaveMessage stores a message. Saving the same message id again
	// replaces the earlier copy, so replays are safe.
	SaveMessage(ctx context.Context, msg Message) error
	// GetMessages returns the full messages of a session in insertion
	// order. Unknown sessions yield an empty slice.
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
	// GetHistory returns the conversation turns of a session with only
	// role and content populated.
	GetHistory(ctx context.Context, sessionID string) ([]Message, error)
	// DeleteSession removes a session and its messages, reporting whether
	// anything was removed.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]Info, error)
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "session_" + shortID()
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return "msg_" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Now returns the store timestamp format: UTC RFC3339.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
