package store

import (
	"context"
	"errors"

	"github.com/Awatech12/kishiface/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// Store is the durable-store collaborator. Rooms are passed in their
// canonical wire form; the engine never depends on concrete persistence
// types.
type Store interface {
	// PersistMessage stores the message and assigns its room sequence
	// atomically. Two concurrent senders in the same room never receive
	// the same sequence.
	PersistMessage(ctx context.Context, room string, senderID int, body, attachmentURL, attachmentKind string) (models.Message, error)

	// LatestSequence returns the highest sequence assigned in the room,
	// zero for an empty room.
	LatestSequence(ctx context.Context, room string) (int64, error)

	// MessagesAfter returns messages with a sequence strictly greater
	// than after, in ascending sequence order.
	MessagesAfter(ctx context.Context, room string, after int64, limit int) ([]models.Message, error)

	// GetMessage fetches one message by id.
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)

	// PersistWatermark stores a read watermark, keeping the maximum of
	// the stored and offered sequence. Returns the value now stored.
	PersistWatermark(ctx context.Context, room string, userID int, sequence int64) (int64, error)

	// Watermark returns the user's stored watermark, zero if none.
	Watermark(ctx context.Context, room string, userID int) (int64, error)

	// EnsureMembership records that the user belongs to the room.
	EnsureMembership(ctx context.Context, room string, userID int) error

	// IsMember reports whether the user belongs to the room.
	IsMember(ctx context.Context, room string, userID int) (bool, error)

	// ListRoomsForUser returns the rooms the user belongs to.
	ListRoomsForUser(ctx context.Context, userID int) ([]string, error)

	// RoomMembers returns the user ids belonging to the room.
	RoomMembers(ctx context.Context, room string) ([]int, error)

	// ToggleReaction flips the user's reaction on a message and reports
	// whether it is now present.
	ToggleReaction(ctx context.Context, messageID int64, userID int, emoji string) (bool, error)
}
