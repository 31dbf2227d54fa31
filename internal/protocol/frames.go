package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Awatech12/kishiface/internal/models"
)

// FrameType tags every unit on the wire, inbound and outbound.
type FrameType string

const (
	// inbound
	FrameJoinRoom        FrameType = "join_room"
	FrameLeaveRoom       FrameType = "leave_room"
	FrameSendMessage     FrameType = "send_message"
	FrameTyping          FrameType = "typing"
	FrameMarkRead        FrameType = "mark_read"
	FrameToggleReaction  FrameType = "toggle_reaction"
	FrameHeartbeat       FrameType = "heartbeat"
	FrameGetUnreadCounts FrameType = "get_unread_counts"

	// outbound
	FrameMessage      FrameType = "message"
	FramePresence     FrameType = "presence"
	FrameUnreadUpdate FrameType = "unread_update"
	FrameMarkedAsRead FrameType = "marked_as_read"
	FrameReaction     FrameType = "reaction"
	FrameError        FrameType = "error"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

// Inbound is a client frame after decoding. Room is the raw wire form;
// handlers parse it into a typed models.Room.
type Inbound struct {
	Type       FrameType `json:"type"`
	Room       string    `json:"room,omitempty"`
	Content    string    `json:"content,omitempty"`
	Attachment string    `json:"attachment,omitempty"`
	IsTyping   bool      `json:"is_typing,omitempty"`
	Sequence   int64     `json:"sequence,omitempty"`
	MessageID  int64     `json:"message_id,omitempty"`
	Emoji      string    `json:"emoji,omitempty"`
	After      *int64    `json:"after,omitempty"`
}

var roomScoped = map[FrameType]bool{
	FrameJoinRoom:       true,
	FrameLeaveRoom:      true,
	FrameSendMessage:    true,
	FrameTyping:         true,
	FrameMarkRead:       true,
	FrameToggleReaction: true,
}

// ParseInbound decodes and validates a client frame. A decode failure or
// a frame missing its room yields ErrMalformedFrame; a type outside the
// dispatch table yields ErrUnknownType. Neither closes the connection.
func ParseInbound(data []byte) (Inbound, error) {
	var frame Inbound
	if err := json.Unmarshal(data, &frame); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch frame.Type {
	case FrameJoinRoom, FrameLeaveRoom, FrameSendMessage, FrameTyping,
		FrameMarkRead, FrameToggleReaction, FrameHeartbeat, FrameGetUnreadCounts:
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, frame.Type)
	}
	if roomScoped[frame.Type] && frame.Room == "" {
		return Inbound{}, fmt.Errorf("%w: missing room", ErrMalformedFrame)
	}
	return frame, nil
}

// Event is a server frame pushed to clients.
type Event struct {
	Type        FrameType       `json:"type"`
	Room        string          `json:"room,omitempty"`
	Message     *models.Message `json:"message,omitempty"`
	Sender      int             `json:"sender,omitempty"`
	IsTyping    bool            `json:"is_typing,omitempty"`
	UserID      int             `json:"user_id,omitempty"`
	Online      *bool           `json:"online,omitempty"`
	LastSeen    *time.Time      `json:"last_seen,omitempty"`
	Sequence    int64           `json:"sequence,omitempty"`
	MessageID   int64           `json:"message_id,omitempty"`
	Emoji       string          `json:"emoji,omitempty"`
	Reacted     *bool           `json:"reacted,omitempty"`
	UnreadCount *int64          `json:"unread_count,omitempty"`
	TotalUnread *int64          `json:"total_unread,omitempty"`
	Code        string          `json:"code,omitempty"`
	Error       string          `json:"error,omitempty"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
}

// Encode marshals the event for the wire.
func (e Event) Encode() []byte {
	payload, _ := json.Marshal(e)
	return payload
}

// MessageEvent builds the fan-out frame for a persisted message.
func MessageEvent(msg models.Message) Event {
	m := msg
	return Event{Type: FrameMessage, Room: msg.Room, Sender: msg.SenderID, Sequence: msg.Sequence, Message: &m}
}

// ErrorEvent builds a typed protocol error frame. The connection stays
// open; malformed input from one client must not affect others.
func ErrorEvent(code, detail string) Event {
	return Event{Type: FrameError, Code: code, Error: detail}
}
