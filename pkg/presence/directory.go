package presence

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Entry binds a live connection token to an announced identity.
type Entry struct {
	ConnID      uuid.UUID
	Identity    string
	DisplayName string
}

// Directory is the in-memory registry of announced sessions. It is
// recomputed wholesale on every announce/remove; callers broadcast the full
// snapshot rather than incremental diffs.
type Directory struct {
	mu      sync.RWMutex
	entries []Entry

	logger *slog.Logger
}

func NewDirectory(logger *slog.Logger) *Directory {
	return &Directory{
		logger: logger.With(slog.String("component", "presence_directory")),
	}
}

// Announce registers an identity for a connection. Any existing entry for
// the same identity is evicted first, so a reconnecting device wins over
// its stale session (last-announce-wins per identity, not per connection).
func (d *Directory) Announce(connID uuid.UUID, identity, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.entries[:0]
	for _, e := range d.entries {
		if e.Identity != identity {
			kept = append(kept, e)
		}
	}
	d.entries = append(kept, Entry{ConnID: connID, Identity: identity, DisplayName: displayName})
	d.logger.Debug("Identity announced", "connID", connID.String(), "identity", identity)
}

// Remove drops the entry matching the connection token. A user with
// multiple devices loses only the disconnecting session's entry. Removing
// an unknown token is a no-op.
func (d *Directory) Remove(connID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.entries {
		if e.ConnID == connID {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			d.logger.Debug("Presence entry removed", "connID", connID.String(), "identity", e.Identity)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current directory.
func (d *Directory) Snapshot() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len reports the number of announced sessions.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
