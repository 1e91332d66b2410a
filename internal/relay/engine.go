package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dhairyamittal28106-alt/nexus-relay/internal/telemetry"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/presence"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/rooms"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/store"
)

// Conn is the transport surface the engine needs from a gateway
// connection. *transport.Connection satisfies it.
type Conn interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// session binds one live connection to whatever identity it has announced.
type session struct {
	conn        Conn
	ip          string
	identity    string
	displayName string
	createdAt   time.Time
}

type handlerFunc func(ctx context.Context, sess *session, payload []byte)

// Config carries the engine's tunables.
type Config struct {
	// AppendTimeout bounds the store append per attempt. The append is
	// retried once on failure, then the event is dropped.
	AppendTimeout time.Duration
}

// Engine orchestrates the relay: it validates inbound events, persists
// durable messages, and fans events out through the room router.
//
// All event processing and disconnect handling is serialized under one
// mutex, matching the source system's single-threaded event loop: two
// events submitted to the same room are broadcast in the order the engine
// finished processing them, and nothing else mutates the presence
// directory or room tables.
type Engine struct {
	logger   *slog.Logger
	presence *presence.Directory
	rooms    *rooms.Router
	store    store.MessageStore
	metrics  *telemetry.Metrics
	config   Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	handlers map[string]handlerFunc
}

func NewEngine(logger *slog.Logger, dir *presence.Directory, router *rooms.Router, msgStore store.MessageStore, metrics *telemetry.Metrics, cfg Config) *Engine {
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 5 * time.Second
	}
	e := &Engine{
		logger:   logger.With(slog.String("component", "relay_engine")),
		presence: dir,
		rooms:    router,
		store:    msgStore,
		metrics:  metrics,
		config:   cfg,
		sessions: make(map[uuid.UUID]*session),
		handlers: make(map[string]handlerFunc),
	}
	e.registerCoreHandlers()
	return e
}

func (e *Engine) register(event string, fn handlerFunc) {
	if _, exists := e.handlers[event]; exists {
		panic("event handler already registered: " + event)
	}
	e.handlers[event] = fn
}

func (e *Engine) registerCoreHandlers() {
	e.register(EventUserOnline, e.handleUserOnline)
	e.register(EventJoinRoom, e.handleJoinRoom)
	e.register(EventLeaveRoom, e.handleLeaveRoom)
	e.register(EventTyping, e.handleTyping)
	e.register(EventStopTyping, e.handleStopTyping)
	e.register(EventSendMessage, e.handleSendMessage)
	e.register(EventSendReaction, e.handleSendReaction)
	e.register(EventMessageSeen, e.handleMessageSeen)
}

// Register adds a freshly accepted connection to the engine. The session
// carries no identity until the client announces one via user_online.
func (e *Engine) Register(conn Conn, ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions[conn.ID()] = &session{
		conn:      conn,
		ip:        ip,
		createdAt: time.Now(),
	}
	e.metrics.ActiveConnections.Set(float64(len(e.sessions)))
	e.logger.Debug("Session registered", "connID", conn.ID().String(), "ip", ip)
}

// HandleMessage is the transport's inbound frame callback. A failure while
// processing one event never tears down the connection or affects others;
// malformed frames are logged and dropped.
func (e *Engine) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	event := gjson.GetBytes(msg, "event")
	if !event.Exists() || event.String() == "" {
		e.logger.Warn("Frame missing event name", "connID", connID.String())
		e.dropped("bad_envelope")
		return
	}
	payload := []byte(gjson.GetBytes(msg, "payload").Raw)

	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[connID]
	if !ok {
		e.logger.Warn("Frame from unknown session", "connID", connID.String())
		e.dropped("unknown_session")
		return
	}
	handler, ok := e.handlers[event.String()]
	if !ok {
		e.logger.Warn("Received unknown event", "event", event.String(), "connID", connID.String())
		e.dropped("unknown_event")
		return
	}

	e.metrics.EventsTotal.WithLabelValues(event.String()).Inc()
	handler(ctx, sess, payload)
}

// HandleDisconnect tears down everything the connection touched: its
// presence entry (by token, a no-op if the client never announced) and all
// of its room memberships.
func (e *Engine) HandleDisconnect(connID uuid.UUID, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[connID]; !ok {
		return
	}
	delete(e.sessions, connID)
	e.rooms.UnsubscribeAll(connID)
	e.metrics.ActiveConnections.Set(float64(len(e.sessions)))

	if e.presence.Remove(connID) {
		e.broadcastUserList()
	}
	e.logger.Info("Session deregistered", "connID", connID.String(), slog.Any("reason", err))
}

// ConnectionCountByIP reports how many live sessions share an address.
// Used by the gateway's connection limiter.
func (e *Engine) ConnectionCountByIP(ip string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, sess := range e.sessions {
		if sess.ip == ip {
			count++
		}
	}
	return count, nil
}

// OldestConnByIP returns the longest-lived session for an address, if any.
func (e *Engine) OldestConnByIP(ip string) (Conn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var oldest *session
	for _, sess := range e.sessions {
		if sess.ip != ip {
			continue
		}
		if oldest == nil || sess.createdAt.Before(oldest.createdAt) {
			oldest = sess
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest.conn, true
}

// CloseAll shuts down every live connection. Part of graceful shutdown.
func (e *Engine) CloseAll(err error) {
	e.mu.Lock()
	conns := make([]Conn, 0, len(e.sessions))
	for _, sess := range e.sessions {
		conns = append(conns, sess.conn)
	}
	e.mu.Unlock()

	// Close outside the lock: each close re-enters HandleDisconnect
	// through the transport's onClose callback.
	for _, conn := range conns {
		conn.Close(err)
	}
}

func (e *Engine) dropped(reason string) {
	e.metrics.EventsDropped.WithLabelValues(reason).Inc()
}
