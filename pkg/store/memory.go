package store

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory is a MessageStore backed by process memory. It exists for tests
// and for running the relay without a data directory; history does not
// survive a restart.
type Memory struct {
	mu sync.RWMutex
	// conversations maps pairKey -> messages in insertion order.
	conversations map[string][]Message
}

func NewMemory() *Memory {
	return &Memory{conversations: make(map[string][]Message)}
}

var _ MessageStore = (*Memory)(nil)

func (s *Memory) Append(ctx context.Context, params AppendParams) (Message, error) {
	if err := params.validate(); err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        ulid.Make().String(),
		Sender:    params.Sender,
		Receiver:  params.Receiver,
		Text:      params.Text,
		Image:     params.Image,
		ReplyTo:   params.ReplyTo,
		Timestamp: time.Now().UTC(),
	}

	key := pairKey(params.Sender, params.Receiver)
	s.mu.Lock()
	s.conversations[key] = append(s.conversations[key], msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *Memory) History(ctx context.Context, identityA, identityB string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.conversations[pairKey(identityA, identityB)]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Memory) DeleteConversation(ctx context.Context, identityA, identityB string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := pairKey(identityA, identityB)
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.conversations[key])
	delete(s.conversations, key)
	return count, nil
}

func (s *Memory) Close() error { return nil }
