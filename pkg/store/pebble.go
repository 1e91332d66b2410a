package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/oklog/ulid/v2"
)

// Pebble is the durable MessageStore. Each message is written under a key
// with a sortable timestamp suffix so a prefix scan yields the conversation
// in insertion order:
//
//	conv:<sortedPair>:msg:<unix_nano_padded>-<seq>
type Pebble struct {
	db *pebble.DB
	// seq reduces key collisions when multiple messages share the same
	// nanosecond timestamp.
	seq uint64

	logger *slog.Logger
}

// OpenPebble opens (or creates) a Pebble database at the given path.
func OpenPebble(path string, logger *slog.Logger) (*Pebble, error) {
	l := logger.With(slog.String("component", "store_pebble"))
	l.Info("opening pebble db", slog.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Pebble{db: db, logger: l}, nil
}

var _ MessageStore = (*Pebble)(nil)

func (s *Pebble) Close() error {
	return s.db.Close()
}

func convPrefix(identityA, identityB string) []byte {
	return []byte("conv:" + pairKey(identityA, identityB) + ":msg:")
}

func (s *Pebble) Append(ctx context.Context, params AppendParams) (Message, error) {
	if err := params.validate(); err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	msg := Message{
		ID:        ulid.Make().String(),
		Sender:    params.Sender,
		Receiver:  params.Receiver,
		Text:      params.Text,
		Image:     params.Image,
		ReplyTo:   params.ReplyTo,
		Timestamp: now,
	}

	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("%s%020d-%06d", convPrefix(params.Sender, params.Receiver), now.UnixNano(), n)

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		s.logger.Error("append failed", slog.String("key", key), slog.Any("error", err))
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("message appended", slog.String("key", key), slog.String("id", msg.ID))
	return msg, nil
}

func (s *Pebble) History(ctx context.Context, identityA, identityB string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := convPrefix(identityA, identityB)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var msg Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			s.logger.Warn("skipping undecodable record", slog.String("key", string(iter.Key())), slog.Any("error", err))
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Pebble) DeleteConversation(ctx context.Context, identityA, identityB string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prefix := convPrefix(identityA, identityB)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	count := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		key := append([]byte(nil), iter.Key()...)
		if err := batch.Delete(key, nil); err != nil {
			iter.Close()
			batch.Close()
			return 0, err
		}
		count++
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		batch.Close()
		return 0, err
	}
	iter.Close()

	if count == 0 {
		batch.Close()
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	s.logger.Info("conversation deleted", slog.String("pair", pairKey(identityA, identityB)), slog.Int("count", count))
	return count, nil
}
