// Package protocol defines the realtime message types exchanged between the
// Vybe client and server. All messages are serialized as JSON and follow a
// consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeTyping        = "typing"
	TypeStopTyping    = "stopTyping"
	TypeLikeOrDislike = "likeOrDislike"
	TypeSendMessage   = "sendMessage"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeOnlineUsers     = "getOnlineUsers"
	TypeGetNotification = "getNotification"
	TypeNewMessage      = "newMessage"
	TypePong            = "pong"
)

// Engagement notification kinds carried inside a NotificationEvent.
const (
	NotifyLike     = "like"
	NotifyDislike  = "dislike"
	NotifyFollow   = "follow"
	NotifyUnfollow = "unfollow"
)

// ---------------------------------------------------------------------------
// Envelope, used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Shared value objects
// ---------------------------------------------------------------------------

// NotificationEvent is an engagement notification (like, dislike, follow,
// unfollow). It is forwarded verbatim to the target user: the server never
// modifies or persists it. Kind is serialized as "type" inside the nested
// notification object, distinct from the envelope discriminator.
type NotificationEvent struct {
	Kind        string          `json:"type"` // like | dislike | follow | unfollow
	UserID      string          `json:"userId"`
	ReceiverID  string          `json:"receiverId"`
	PostID      string          `json:"postId,omitempty"`
	Message     string          `json:"message,omitempty"`
	UserDetails json.RawMessage `json:"userDetails,omitempty"`
}

// IsReaction reports whether the notification is a like or dislike. The
// likeOrDislike socket event carries reactions only; follow and unfollow
// notifications arrive through the REST API's engagement subject.
func (e NotificationEvent) IsReaction() bool {
	return e.Kind == NotifyLike || e.Kind == NotifyDislike
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// TypingMsg is sent by the client when it starts typing to another user.
type TypingMsg struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
}

// StopTypingMsg is sent by the client when it stops typing.
type StopTypingMsg struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
}

// LikeOrDislikeMsg carries an engagement notification originated by the
// client after a like/dislike action succeeded upstream.
type LikeOrDislikeMsg struct {
	Type         string            `json:"type"`
	Notification NotificationEvent `json:"notification"`
}

// SendMessageMsg asks the server to persist and deliver a direct message.
type SendMessageMsg struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// OnlineUsersMsg carries the full online-user roster. It is sent to every
// connected client on each presence transition.
type OnlineUsersMsg struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// ServerTypingMsg relays a typing (or stop-typing) indicator to the receiver.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
}

// GetNotificationMsg wraps an engagement notification pushed to its target.
type GetNotificationMsg struct {
	Type         string            `json:"type"`
	Notification NotificationEvent `json:"notification"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw socket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopTyping:
		var m StopTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLikeOrDislike:
		var m LikeOrDislikeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs (or any JSON-marshalable
// value); this function marshals it, injects the type field, and returns the
// final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
