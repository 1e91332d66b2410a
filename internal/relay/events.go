package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound event names (client -> server).
const (
	EventUserOnline   = "user_online"
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventTyping       = "typing"
	EventStopTyping   = "stop_typing"
	EventSendMessage  = "send_message"
	EventSendReaction = "send_reaction"
	EventMessageSeen  = "message_seen"
)

// Outbound event names (server -> client).
const (
	EventUpdateUserList   = "update_user_list"
	EventDisplayTyping    = "display_typing"
	EventHideTyping       = "hide_typing"
	EventReceiveMessage   = "receive_message"
	EventUpdateReaction   = "update_reaction"
	EventUpdateSeenStatus = "update_seen_status"
	EventMessageRejected  = "message_rejected"
)

// Envelope is the wire frame carried in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// --- inbound payloads ---

type UserOnlinePayload struct {
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type TypingPayload struct {
	Room string `json:"room"`
	User string `json:"user"`
}

type StopTypingPayload struct {
	Room string `json:"room"`
}

type SendMessagePayload struct {
	ID         string          `json:"id,omitempty"`
	Room       string          `json:"room"`
	Author     string          `json:"author,omitempty"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Message    string          `json:"message"`
	Image      string          `json:"image,omitempty"`
	ReplyTo    json.RawMessage `json:"replyTo,omitempty"`
	Time       string          `json:"time,omitempty"`
}

type SendReactionPayload struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	User      string `json:"user"`
}

type MessageSeenPayload struct {
	Room   string `json:"room"`
	ID     string `json:"id"`
	Viewer string `json:"viewer"`
}

// --- outbound payloads ---

// PresenceEntry is one element of update_user_list.
type PresenceEntry struct {
	SocketID string `json:"socketId"`
	Name     string `json:"name"`
	UserID   string `json:"userId"`
}

type DisplayTypingPayload struct {
	User string `json:"user"`
}

type UpdateReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	User      string `json:"user"`
}

type UpdateSeenStatusPayload struct {
	ID     string `json:"id"`
	Viewer string `json:"viewer,omitempty"`
}

type MessageRejectedPayload struct {
	Reason string `json:"reason"`
}

// decodeStrict unmarshals an event payload, rejecting unknown fields so
// malformed or oversized duck-typed payloads never pass through opaquely.
func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// marshalFrame builds an outbound envelope.
func marshalFrame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}
