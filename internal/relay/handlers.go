package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/store"
)

// handleUserOnline binds the announced identity to the session and
// broadcasts the full presence snapshot to every connection. Announcing an
// identity evicts any stale presence entry the same identity held from a
// previous connection.
func (e *Engine) handleUserOnline(ctx context.Context, sess *session, payload []byte) {
	var p UserOnlinePayload
	if err := decodeStrict(payload, &p); err != nil {
		e.logger.Warn("Malformed user_online payload", slog.Any("error", err))
		e.dropped("bad_payload")
		return
	}
	if p.Name == "" || p.UserID == "" {
		e.dropped("validation")
		return
	}

	sess.identity = p.UserID
	sess.displayName = p.Name
	e.presence.Announce(sess.conn.ID(), p.UserID, p.Name)
	e.broadcastUserList()
}

func (e *Engine) handleJoinRoom(ctx context.Context, sess *session, payload []byte) {
	var p JoinRoomPayload
	if err := decodeStrict(payload, &p); err != nil || p.RoomID == "" {
		e.dropped("validation")
		return
	}
	e.rooms.Join(sess.conn.ID(), p.RoomID)
}

// handleLeaveRoom is an extension over the source protocol, which only
// cleaned memberships on disconnect.
func (e *Engine) handleLeaveRoom(ctx context.Context, sess *session, payload []byte) {
	var p LeaveRoomPayload
	if err := decodeStrict(payload, &p); err != nil || p.RoomID == "" {
		e.dropped("validation")
		return
	}
	e.rooms.Leave(sess.conn.ID(), p.RoomID)
}

// handleTyping relays a typing indicator to everyone in the room except the
// typist. Nothing is persisted.
func (e *Engine) handleTyping(ctx context.Context, sess *session, payload []byte) {
	var p TypingPayload
	if err := decodeStrict(payload, &p); err != nil || p.Room == "" {
		e.dropped("validation")
		return
	}
	if !e.rooms.IsMember(sess.conn.ID(), p.Room) {
		e.dropped("not_a_member")
		return
	}
	e.publishExcept(p.Room, sess.conn.ID(), EventDisplayTyping, DisplayTypingPayload{User: p.User})
}

func (e *Engine) handleStopTyping(ctx context.Context, sess *session, payload []byte) {
	var p StopTypingPayload
	if err := decodeStrict(payload, &p); err != nil || p.Room == "" {
		e.dropped("validation")
		return
	}
	e.publishExcept(p.Room, sess.conn.ID(), EventHideTyping, struct{}{})
}

// handleSendMessage is the only durable path. The message is appended to
// the store before any broadcast; if persistence fails after one retry the
// event is dropped, no receive_message goes out, and the sender gets a
// message_rejected notice on its own session only.
func (e *Engine) handleSendMessage(ctx context.Context, sess *session, payload []byte) {
	var p SendMessagePayload
	if err := decodeStrict(payload, &p); err != nil {
		e.logger.Warn("Malformed send_message payload", slog.Any("error", err))
		e.dropped("bad_payload")
		e.reject(sess, "malformed payload")
		return
	}
	if p.SenderID == "" || p.ReceiverID == "" {
		e.logger.Warn("send_message missing sender or receiver identity")
		e.dropped("validation")
		e.reject(sess, "missing sender or receiver identity")
		return
	}

	msg, err := e.appendWithRetry(ctx, store.AppendParams{
		Sender:   p.SenderID,
		Receiver: p.ReceiverID,
		Text:     p.Message,
		Image:    p.Image,
		ReplyTo:  p.ReplyTo,
	})
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			e.dropped("validation")
			e.reject(sess, "message must carry text or an image")
			return
		}
		e.logger.Error("Message append failed, dropping event", slog.Any("error", err))
		e.dropped("persistence")
		e.reject(sess, "message could not be stored")
		return
	}
	e.metrics.MessagesPersisted.Inc()

	// Fan out the original fields stamped with the server-assigned id and
	// time, to the entire room including the sender's own sessions so
	// every UI reflects server-confirmed state.
	p.ID = msg.ID
	p.Time = msg.Timestamp.Format(time.RFC3339)
	e.publish(p.Room, EventReceiveMessage, p)
}

func (e *Engine) appendWithRetry(ctx context.Context, params store.AppendParams) (store.Message, error) {
	attempt := func() (store.Message, error) {
		appendCtx, cancel := context.WithTimeout(ctx, e.config.AppendTimeout)
		defer cancel()
		return e.store.Append(appendCtx, params)
	}

	msg, err := attempt()
	if err == nil || errors.Is(err, store.ErrValidation) {
		return msg, err
	}
	e.logger.Warn("Message append failed, retrying once", slog.Any("error", err))
	return attempt()
}

// handleSendReaction relays a reaction without persisting it; reactions are
// lost on reconnect by design of the source system.
func (e *Engine) handleSendReaction(ctx context.Context, sess *session, payload []byte) {
	var p SendReactionPayload
	if err := decodeStrict(payload, &p); err != nil || p.Room == "" {
		e.dropped("validation")
		return
	}
	e.publishExcept(p.Room, sess.conn.ID(), EventUpdateReaction, UpdateReactionPayload{
		MessageID: p.MessageID,
		Emoji:     p.Emoji,
		User:      p.User,
	})
}

// handleMessageSeen relays a read acknowledgement; seen counts are
// recomputed client-side from these broadcasts and never stored.
func (e *Engine) handleMessageSeen(ctx context.Context, sess *session, payload []byte) {
	var p MessageSeenPayload
	if err := decodeStrict(payload, &p); err != nil || p.Room == "" || p.ID == "" {
		e.dropped("validation")
		return
	}
	e.publishExcept(p.Room, sess.conn.ID(), EventUpdateSeenStatus, UpdateSeenStatusPayload{
		ID:     p.ID,
		Viewer: p.Viewer,
	})
}

// --- fan-out helpers (callers hold e.mu) ---

// publish delivers an event to every connection joined to the room,
// including the publisher's own.
func (e *Engine) publish(roomID, event string, payload any) {
	frame, err := marshalFrame(event, payload)
	if err != nil {
		e.logger.Error("Failed to marshal broadcast frame", "event", event, slog.Any("error", err))
		return
	}
	for _, connID := range e.rooms.Members(roomID) {
		if sess, ok := e.sessions[connID]; ok {
			sess.conn.Send(frame)
			e.metrics.BroadcastFrames.Inc()
		}
	}
}

// publishExcept delivers an event to the room minus one connection; used
// for ephemeral signals the originator should not have echoed back.
func (e *Engine) publishExcept(roomID string, except uuid.UUID, event string, payload any) {
	frame, err := marshalFrame(event, payload)
	if err != nil {
		e.logger.Error("Failed to marshal broadcast frame", "event", event, slog.Any("error", err))
		return
	}
	for _, connID := range e.rooms.Members(roomID) {
		if connID == except {
			continue
		}
		if sess, ok := e.sessions[connID]; ok {
			sess.conn.Send(frame)
			e.metrics.BroadcastFrames.Inc()
		}
	}
}

// broadcastUserList pushes the full presence snapshot to every live
// session, announced or not.
func (e *Engine) broadcastUserList() {
	snapshot := e.presence.Snapshot()
	list := make([]PresenceEntry, 0, len(snapshot))
	for _, entry := range snapshot {
		list = append(list, PresenceEntry{
			SocketID: entry.ConnID.String(),
			Name:     entry.DisplayName,
			UserID:   entry.Identity,
		})
	}
	e.metrics.OnlineUsers.Set(float64(len(list)))

	frame, err := marshalFrame(EventUpdateUserList, list)
	if err != nil {
		e.logger.Error("Failed to marshal user list", slog.Any("error", err))
		return
	}
	for _, sess := range e.sessions {
		sess.conn.Send(frame)
		e.metrics.BroadcastFrames.Inc()
	}
}

// reject notifies only the originating session that its event was dropped.
// The source system dropped silently; the explicit notice is an additive
// upgrade so senders are no longer blind to failures.
func (e *Engine) reject(sess *session, reason string) {
	frame, err := marshalFrame(EventMessageRejected, MessageRejectedPayload{Reason: reason})
	if err != nil {
		return
	}
	sess.conn.Send(frame)
}
