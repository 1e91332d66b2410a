package transport_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/transport"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestConnection(wg *sync.WaitGroup) *transport.Connection {
	cfg := transport.ConnectionConfig{ReadTimeout: time.Second}
	return transport.NewConnection(context.Background(), wg, nil, cfg, nil, nil, newTestLogger())
}

func TestSendAfterCloseDoesNotPanic(t *testing.T) {
	var wg sync.WaitGroup
	conn := newTestConnection(&wg)

	conn.Close(nil)

	// A broadcast already holding a reference to the session can still call
	// Send after teardown; it must be a no-op, never a panic.
	for i := 0; i < 500; i++ {
		conn.Send([]byte(`{"event":"receive_message"}`))
	}
}

func TestConcurrentSendAndClose(t *testing.T) {
	for i := 0; i < 100; i++ {
		var wg sync.WaitGroup
		conn := newTestConnection(&wg)

		var senders sync.WaitGroup
		for s := 0; s < 4; s++ {
			senders.Add(1)
			go func() {
				defer senders.Done()
				for j := 0; j < 50; j++ {
					conn.Send([]byte("frame"))
				}
			}()
		}
		conn.Close(nil)
		senders.Wait()
	}
}

func TestCloseBeforeRunBalancesWaitGroup(t *testing.T) {
	var wg sync.WaitGroup
	conn := newTestConnection(&wg)

	// Cycle-mode limiting can close a freshly accepted connection before its
	// pumps ever start. The waitgroup must still settle at zero.
	conn.Close(nil)

	settled := make(chan struct{})
	go func() {
		wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatal("WaitGroup did not settle after closing an unstarted connection")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	var wg sync.WaitGroup
	closeCalls := 0
	cfg := transport.ConnectionConfig{ReadTimeout: time.Second}
	conn := transport.NewConnection(context.Background(), &wg, nil, cfg, nil, func(_ uuid.UUID, _ error) {
		closeCalls++
	}, newTestLogger())

	conn.Close(nil)
	conn.Close(nil)
	wg.Wait()

	if closeCalls != 1 {
		t.Fatalf("Expected onClose to fire once, fired %d times", closeCalls)
	}

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done channel should be closed after Close")
	}
}
