package store_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/store"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// Both implementations must satisfy the same contract; every test runs
// against each.
func withStores(t *testing.T, run func(t *testing.T, s store.MessageStore)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := store.NewMemory()
		defer s.Close()
		run(t, s)
	})
	t.Run("pebble", func(t *testing.T) {
		s, err := store.OpenPebble(t.TempDir(), newTestLogger())
		if err != nil {
			t.Fatalf("OpenPebble failed: %v", err)
		}
		defer s.Close()
		run(t, s)
	})
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	withStores(t, func(t *testing.T, s store.MessageStore) {
		msg, err := s.Append(context.Background(), store.AppendParams{
			Sender: "U1", Receiver: "U2", Text: "hi",
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if msg.ID == "" {
			t.Error("Expected a server-assigned id")
		}
		if msg.Timestamp.IsZero() {
			t.Error("Expected a server-assigned timestamp")
		}
		if msg.Sender != "U1" || msg.Receiver != "U2" || msg.Text != "hi" {
			t.Errorf("Message fields not preserved: %+v", msg)
		}
	})
}

func TestAppendRejectsEmptyTextWithoutImage(t *testing.T) {
	withStores(t, func(t *testing.T, s store.MessageStore) {
		_, err := s.Append(context.Background(), store.AppendParams{
			Sender: "U1", Receiver: "U2",
		})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("Expected ErrValidation, got %v", err)
		}

		// An image-only message is valid.
		if _, err := s.Append(context.Background(), store.AppendParams{
			Sender: "U1", Receiver: "U2", Image: "https://cdn.example/pic.png",
		}); err != nil {
			t.Fatalf("Image-only append failed: %v", err)
		}
	})
}

func TestHistoryCoversBothDirectionsInOrder(t *testing.T) {
	withStores(t, func(t *testing.T, s store.MessageStore) {
		ctx := context.Background()
		texts := []string{"hey", "yo", "what's up"}
		senders := []string{"U1", "U2", "U1"}
		for i, text := range texts {
			receiver := "U2"
			if senders[i] == "U2" {
				receiver = "U1"
			}
			if _, err := s.Append(ctx, store.AppendParams{Sender: senders[i], Receiver: receiver, Text: text}); err != nil {
				t.Fatalf("Append %d failed: %v", i, err)
			}
		}

		// Either direction of the pair yields the same conversation.
		for _, pair := range [][2]string{{"U1", "U2"}, {"U2", "U1"}} {
			history, err := s.History(ctx, pair[0], pair[1], 0)
			if err != nil {
				t.Fatalf("History(%v) failed: %v", pair, err)
			}
			if len(history) != 3 {
				t.Fatalf("Expected 3 messages, got %d", len(history))
			}
			for i, msg := range history {
				if msg.Text != texts[i] {
					t.Errorf("Message %d out of order: expected %q got %q", i, texts[i], msg.Text)
				}
			}
		}
	})
}

func TestHistoryIsolatesConversations(t *testing.T) {
	withStores(t, func(t *testing.T, s store.MessageStore) {
		ctx := context.Background()
		s.Append(ctx, store.AppendParams{Sender: "U1", Receiver: "U2", Text: "for u2"})
		s.Append(ctx, store.AppendParams{Sender: "U1", Receiver: "U3", Text: "for u3"})

		history, err := s.History(ctx, "U1", "U2", 0)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 1 || history[0].Text != "for u2" {
			t.Errorf("Expected only the U1/U2 conversation, got %+v", history)
		}
	})
}

func TestHistoryLimit(t *testing.T) {
	withStores(t, func(t *testing.T, s store.MessageStore) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			if _, err := s.Append(ctx, store.AppendParams{Sender: "U1", Receiver: "U2", Text: "m"}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		history, err := s.History(ctx, "U1", "U2", 2)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 2 {
			t.Errorf("Expected limit of 2 respected, got %d", len(history))
		}
	})
}

func TestDeleteConversationIsIdempotent(t *testing.T) {
	withStores(t, func(t *testing.T, s store.MessageStore) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			if _, err := s.Append(ctx, store.AppendParams{Sender: "U1", Receiver: "U2", Text: "m"}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		s.Append(ctx, store.AppendParams{Sender: "U1", Receiver: "U3", Text: "untouched"})

		count, err := s.DeleteConversation(ctx, "U2", "U1")
		if err != nil {
			t.Fatalf("DeleteConversation failed: %v", err)
		}
		if count != 5 {
			t.Errorf("Expected 5 deleted, got %d", count)
		}

		history, _ := s.History(ctx, "U1", "U2", 0)
		if len(history) != 0 {
			t.Errorf("Expected empty history after delete, got %d", len(history))
		}

		// Second delete yields zero, not an error.
		count, err = s.DeleteConversation(ctx, "U1", "U2")
		if err != nil {
			t.Fatalf("Second DeleteConversation failed: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected 0 deleted on second call, got %d", count)
		}

		other, _ := s.History(ctx, "U1", "U3", 0)
		if len(other) != 1 {
			t.Errorf("Delete must not touch other conversations, got %d messages", len(other))
		}
	})
}

func TestHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := store.OpenPebble(dir, newTestLogger())
	if err != nil {
		t.Fatalf("OpenPebble failed: %v", err)
	}
	if _, err := s.Append(context.Background(), store.AppendParams{Sender: "U1", Receiver: "U2", Text: "durable"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := store.OpenPebble(dir, newTestLogger())
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	history, err := reopened.History(context.Background(), "U1", "U2", 0)
	if err != nil {
		t.Fatalf("History after reopen failed: %v", err)
	}
	if len(history) != 1 || history[0].Text != "durable" {
		t.Errorf("Expected message to survive reopen, got %+v", history)
	}
}
