package models

import "time"

// Message is a persisted room message. Sequence is assigned by the store
// at persistence time and is the authoritative ordering key within a room.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	Room           string    `db:"room" json:"room"`
	Sequence       int64     `db:"sequence" json:"sequence"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Body           string    `db:"body" json:"body,omitempty"`
	AttachmentURL  string    `db:"attachment_url" json:"attachment_url,omitempty"`
	AttachmentKind string    `db:"attachment_kind" json:"attachment_kind,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Watermark records the last sequence a user has read in a room.
type Watermark struct {
	Room      string    `db:"room" json:"room"`
	UserID    int       `db:"user_id" json:"user_id"`
	Sequence  int64     `db:"sequence" json:"sequence"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Reaction is a user's toggleable reaction to a message.
type Reaction struct {
	MessageID int64  `db:"message_id" json:"message_id"`
	UserID    int    `db:"user_id" json:"user_id"`
	Emoji     string `db:"emoji" json:"emoji"`
}

// RoomUnread pairs a room with the caller's unread count.
type RoomUnread struct {
	Room        string `json:"room"`
	UnreadCount int64  `json:"unread_count"`
}
