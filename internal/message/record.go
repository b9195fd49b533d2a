// Package message is the durable message-store collaborator backed by
// PostgreSQL. The realtime core treats it as strictly upstream: a message is
// persisted here first, and only the resulting Record is handed to the
// delivery bridge. The core itself never persists anything.
package message

import "time"

// Record is an immutable persisted direct message. Its JSON shape is the
// "newMessage" wire payload pushed to clients.
type Record struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}
