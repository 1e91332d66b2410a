package rooms_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/rooms"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestJoinAndMembers(t *testing.T) {
	r := rooms.NewRouter(newTestLogger())
	conn1, conn2 := uuid.New(), uuid.New()

	r.Join(conn1, "squad")
	r.Join(conn2, "squad")
	// Joining twice must not duplicate the membership.
	r.Join(conn1, "squad")

	members := r.Members("squad")
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}
	if !r.IsMember(conn1, "squad") || !r.IsMember(conn2, "squad") {
		t.Error("Expected both connections to be members")
	}
}

func TestMultiRoomMembership(t *testing.T) {
	r := rooms.NewRouter(newTestLogger())
	conn := uuid.New()

	// A connection stays in every room it joined; there is no implicit
	// leave when joining another room.
	r.Join(conn, "squad")
	r.Join(conn, "DM_U1_U2")

	if !r.IsMember(conn, "squad") {
		t.Error("Joining a second room must not drop the first membership")
	}
	if !r.IsMember(conn, "DM_U1_U2") {
		t.Error("Expected membership in the second room")
	}
}

func TestLeave(t *testing.T) {
	r := rooms.NewRouter(newTestLogger())
	conn1, conn2 := uuid.New(), uuid.New()
	r.Join(conn1, "squad")
	r.Join(conn2, "squad")

	r.Leave(conn1, "squad")
	if r.IsMember(conn1, "squad") {
		t.Error("Expected conn1 to have left the room")
	}
	if !r.IsMember(conn2, "squad") {
		t.Error("Leave must not affect other members")
	}

	// Leaving a room never joined is a no-op.
	r.Leave(conn1, "never-joined")
}

func TestUnsubscribeAll(t *testing.T) {
	r := rooms.NewRouter(newTestLogger())
	conn, other := uuid.New(), uuid.New()
	r.Join(conn, "a")
	r.Join(conn, "b")
	r.Join(other, "b")

	r.UnsubscribeAll(conn)

	if r.IsMember(conn, "a") || r.IsMember(conn, "b") {
		t.Error("Expected all memberships removed on unsubscribe")
	}
	if !r.IsMember(other, "b") {
		t.Error("Unsubscribe must not touch other connections")
	}
	if members := r.Members("a"); len(members) != 0 {
		t.Errorf("Expected empty room to report no members, got %d", len(members))
	}
}

func TestDeriveDirectIsOrderInsensitive(t *testing.T) {
	pairs := [][2]string{
		{"U1", "U2"},
		{"zoe", "adam"},
		{"same", "same"},
		{"6805f1", "6805f2"},
	}
	for _, pair := range pairs {
		ab := rooms.DeriveDirect(pair[0], pair[1])
		ba := rooms.DeriveDirect(pair[1], pair[0])
		if ab != ba {
			t.Errorf("DeriveDirect(%q,%q)=%q but reversed=%q", pair[0], pair[1], ab, ba)
		}
	}
}

func TestDeriveDirectKey(t *testing.T) {
	if got := rooms.DeriveDirect("U1", "U2"); got != "DM_U1_U2" {
		t.Errorf("Expected DM_U1_U2, got %q", got)
	}
	if got := rooms.DeriveDirect("U2", "U1"); got != "DM_U1_U2" {
		t.Errorf("Expected DM_U1_U2 regardless of initiator, got %q", got)
	}
}
