package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Awatech12/kishiface/internal/models"
	"github.com/Awatech12/kishiface/internal/observability"
	"github.com/Awatech12/kishiface/internal/protocol"
	"github.com/Awatech12/kishiface/internal/registry"
	"github.com/Awatech12/kishiface/internal/rooms"
	"github.com/Awatech12/kishiface/internal/store"
	"github.com/Awatech12/kishiface/internal/unread"
)

var (
	ErrEmptyMessage       = errors.New("empty message")
	ErrNotAMember         = errors.New("not a room member")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Router validates, persists and fans out messages. Persist and fan-out
// enqueue are serialized per room so delivery order always equals
// sequence order; different rooms proceed fully in parallel.
type Router struct {
	store  store.Store
	dir    *rooms.Directory
	reg    *registry.Registry
	ledger *unread.Ledger

	roomLocks sync.Map // room wire form -> *sync.Mutex
}

// NewRouter wires the router to its collaborators.
func NewRouter(s store.Store, dir *rooms.Directory, reg *registry.Registry, ledger *unread.Ledger) *Router {
	return &Router{store: s, dir: dir, reg: reg, ledger: ledger}
}

// Publish persists a message and fans it out to the room's subscribers.
// Persistence failure aborts the publish; per-connection fan-out failures
// do not roll it back, a slow client reconciles via backfill.
func (r *Router) Publish(ctx context.Context, room models.Room, senderID int, body, attachmentURL, attachmentKind string) (models.Message, error) {
	ctx, span := otel.Tracer("kishiface/router").Start(ctx, "router.publish")
	defer span.End()

	if body == "" && attachmentURL == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if err := r.Authorize(ctx, room, senderID); err != nil {
		return models.Message{}, err
	}

	lock := r.roomLock(room)
	lock.Lock()
	msg, err := r.store.PersistMessage(ctx, room.String(), senderID, body, attachmentURL, attachmentKind)
	if err != nil {
		lock.Unlock()
		return models.Message{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	r.ledger.NoteMessage(msg.Room, msg.Sequence)
	r.fanout(room, protocol.MessageEvent(msg).Encode(), true, 0)
	lock.Unlock()

	// the sender has read their own message
	if _, _, err := r.ledger.MarkRead(ctx, msg.Room, senderID, msg.Sequence); err != nil {
		log.Printf("router: advancing sender watermark failed: %v", err)
	}

	go r.propagateUnread(room, msg)
	return msg, nil
}

// Subscribe joins the connection to the room, replaying persisted
// history past the given sequence first when the client supplies one.
// Replay and join happen under the room's publish lock, so a concurrent
// publish can neither slip between the replayed history and live fan-out
// nor be delivered twice.
func (r *Router) Subscribe(ctx context.Context, room models.Room, connID registry.ConnID, after *int64, limit int) error {
	lock := r.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	if after != nil {
		msgs, err := r.store.MessagesAfter(ctx, room.String(), *after, limit)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		for _, msg := range msgs {
			if result := r.reg.Send(connID, protocol.MessageEvent(msg).Encode(), true); result != registry.SendOK {
				break
			}
		}
	}

	r.dir.Join(room, connID)
	return nil
}

// Typing broadcasts a typing indicator to the room, excluding every
// connection of the sender. Ephemeral: droppable under backpressure.
func (r *Router) Typing(room models.Room, senderID int, isTyping bool) {
	event := protocol.Event{
		Type:     protocol.FrameTyping,
		Room:     room.String(),
		Sender:   senderID,
		IsTyping: isTyping,
	}
	r.fanout(room, event.Encode(), false, senderID)
}

// React toggles the user's reaction on a message and broadcasts the
// result to the room.
func (r *Router) React(ctx context.Context, room models.Room, userID int, messageID int64, emoji string) (bool, error) {
	if err := r.Authorize(ctx, room, userID); err != nil {
		return false, err
	}
	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if msg.Room != room.String() {
		return false, store.ErrMessageNotFound
	}

	reacted, err := r.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	event := protocol.Event{
		Type:      protocol.FrameReaction,
		Room:      room.String(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Reacted:   &reacted,
	}
	r.fanout(room, event.Encode(), true, 0)
	return reacted, nil
}

// Broadcast fans an arbitrary event out to the room's subscribers.
// Used for presence changes pushed to the presence topic.
func (r *Router) Broadcast(room models.Room, event protocol.Event, durable bool) {
	r.fanout(room, event.Encode(), durable, 0)
}

// SendToUser pushes an event to every live connection of one user.
func (r *Router) SendToUser(userID int, event protocol.Event, durable bool) {
	payload := event.Encode()
	for _, connID := range r.reg.ConnsForUser(userID) {
		result := r.reg.Send(connID, payload, durable)
		observability.IncFanoutResult(result.String())
	}
}

// Authorize checks the user may act in the room: direct rooms admit only
// their two parties, topics are open, channel membership lives in the
// store.
func (r *Router) Authorize(ctx context.Context, room models.Room, userID int) error {
	switch room.Kind {
	case models.RoomDirect, models.RoomTopic:
		if !room.HasUser(userID) {
			return ErrNotAMember
		}
		return nil
	case models.RoomChannel:
		member, err := r.store.IsMember(ctx, room.String(), userID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if !member {
			return ErrNotAMember
		}
		return nil
	}
	return ErrNotAMember
}

// fanout enqueues the payload for every subscribed connection, skipping
// the excluded user's connections when exclude is non-zero. Failures are
// per-connection and never abort the loop.
func (r *Router) fanout(room models.Room, payload []byte, durable bool, exclude int) {
	for _, connID := range r.dir.Members(room) {
		if exclude != 0 {
			if conn, ok := r.reg.Lookup(connID); ok && conn.UserID == exclude {
				continue
			}
		}
		result := r.reg.Send(connID, payload, durable)
		observability.IncFanoutResult(result.String())
		if result != registry.SendOK {
			log.Printf("router: fanout to conn=%s result=%s room=%s", connID, result, room)
		}
	}
}

// propagateUnread recomputes unread counts for every room member except
// the sender and pushes an unread_update to each of their connections.
func (r *Router) propagateUnread(room models.Room, msg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	members, err := r.roomUsers(ctx, room)
	if err != nil {
		log.Printf("router: listing members for unread update failed: %v", err)
		return
	}

	for _, userID := range members {
		if userID == msg.SenderID {
			continue
		}
		count, err := r.ledger.UnreadCount(ctx, msg.Room, userID)
		if err != nil {
			log.Printf("router: unread count for user %d failed: %v", userID, err)
			continue
		}
		total, err := r.ledger.TotalUnread(ctx, userID)
		if err != nil {
			log.Printf("router: total unread for user %d failed: %v", userID, err)
			continue
		}
		event := protocol.Event{
			Type:        protocol.FrameUnreadUpdate,
			Room:        msg.Room,
			UserID:      userID,
			UnreadCount: &count,
			TotalUnread: &total,
		}
		r.SendToUser(userID, event, false)
	}

	_ = observability.PublishEvent(ctx, observability.RouteUnreadEvents, observability.EventEnvelope{
		EventType: "unread",
		EventName: "unread_changed",
		Payload:   map[string]interface{}{"room": msg.Room, "sequence": msg.Sequence},
	}, nil)
}

func (r *Router) roomUsers(ctx context.Context, room models.Room) ([]int, error) {
	if room.Kind == models.RoomDirect {
		return []int{room.UserA, room.UserB}, nil
	}
	return r.store.RoomMembers(ctx, room.String())
}

func (r *Router) roomLock(room models.Room) *sync.Mutex {
	lock, _ := r.roomLocks.LoadOrStore(room.String(), &sync.Mutex{})
	return lock.(*sync.Mutex)
}
