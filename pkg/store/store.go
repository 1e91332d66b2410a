package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrValidation marks an append rejected before it reached storage.
var ErrValidation = errors.New("message validation failed")

// Message is the persisted direct-message record. Immutable once created
// except for aggregate deletion by identity pair.
type Message struct {
	ID        string          `json:"_id"`
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Text      string          `json:"text"`
	Image     string          `json:"image,omitempty"`
	ReplyTo   json.RawMessage `json:"replyTo,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AppendParams carries the caller-supplied fields of a new message. The id
// and timestamp are always server-assigned.
type AppendParams struct {
	Sender   string
	Receiver string
	Text     string
	Image    string
	ReplyTo  json.RawMessage
}

func (p AppendParams) validate() error {
	if p.Sender == "" || p.Receiver == "" {
		return ErrValidation
	}
	if p.Text == "" && p.Image == "" {
		return ErrValidation
	}
	return nil
}

// MessageStore is the durable, append-only log of direct messages between
// two identities.
type MessageStore interface {
	// Append assigns a server-generated id and creation timestamp and
	// persists the message. Fails with ErrValidation if both text and
	// image are empty.
	Append(ctx context.Context, params AppendParams) (Message, error)

	// History returns all messages between the pair in either direction,
	// ascending by creation time. limit <= 0 returns the full history.
	History(ctx context.Context, identityA, identityB string, limit int) ([]Message, error)

	// DeleteConversation removes all messages between the pair in either
	// direction and reports how many were deleted. Idempotent.
	DeleteConversation(ctx context.Context, identityA, identityB string) (int, error)

	Close() error
}

// pairKey produces the direction-insensitive storage key for an identity
// pair. Identities are opaque tokens; the separator only needs to be
// stable, not unambiguous, because both directions collapse to one key.
func pairKey(identityA, identityB string) string {
	ids := []string{identityA, identityB}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}
