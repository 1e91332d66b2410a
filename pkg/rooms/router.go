package rooms

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Router maps opaque room identifiers to the set of connections subscribed
// to them. Rooms are not persisted entities; a room exists exactly as long
// as it has members.
type Router struct {
	mu sync.RWMutex
	// rooms maps roomID -> member connection tokens.
	rooms map[string]map[uuid.UUID]struct{}
	// memberships is the reverse index, used for disconnect cleanup.
	memberships map[uuid.UUID]map[string]struct{}

	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		rooms:       make(map[string]map[uuid.UUID]struct{}),
		memberships: make(map[uuid.UUID]map[string]struct{}),
		logger:      logger.With(slog.String("component", "room_router")),
	}
}

// Join adds the connection to the room's member set, creating the room if
// needed. Joining a room twice is a no-op. A connection may be a member of
// any number of rooms; stale memberships persist until Leave or disconnect.
func (r *Router) Join(connID uuid.UUID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[uuid.UUID]struct{})
		r.rooms[roomID] = room
	}
	if _, member := room[connID]; member {
		return
	}
	room[connID] = struct{}{}

	joined, ok := r.memberships[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[connID] = joined
	}
	joined[roomID] = struct{}{}

	r.logger.Debug("Connection joined room", "connID", connID.String(), "roomID", roomID)
}

// Leave removes the connection from a single room. Empty rooms are dropped
// for memory hygiene.
func (r *Router) Leave(connID uuid.UUID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, roomID)
}

func (r *Router) leaveLocked(connID uuid.UUID, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		r.logger.Debug("Removed empty room", "roomID", roomID)
	}
	if joined, ok := r.memberships[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, connID)
		}
	}
}

// UnsubscribeAll removes the connection from every room it joined. Called
// on disconnect; this is the only cleanup path the source design has.
func (r *Router) UnsubscribeAll(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.memberships[connID] {
		r.leaveLocked(connID, roomID)
	}
}

// Members returns the connection tokens currently joined to the room.
func (r *Router) Members(roomID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(room))
	for id := range room {
		out = append(out, id)
	}
	return out
}

// IsMember reports whether the connection is joined to the room.
func (r *Router) IsMember(connID uuid.UUID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, member := room[connID]
	return member
}

// directPrefix is the fixed marker sorted into pairwise room keys.
const directPrefix = "DM"

// DeriveDirect computes the deterministic room key for a 1:1 conversation.
// The two identities are sorted so both sides derive the same key
// regardless of who initiates.
func DeriveDirect(identityA, identityB string) string {
	parts := []string{directPrefix, identityA, identityB}
	sort.Strings(parts)
	return strings.Join(parts, "_")
}
