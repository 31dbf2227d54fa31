package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Awatech12/kishiface/internal/media"
	"github.com/Awatech12/kishiface/internal/models"
	"github.com/Awatech12/kishiface/internal/observability"
	"github.com/Awatech12/kishiface/internal/protocol"
	"github.com/Awatech12/kishiface/internal/registry"
	"github.com/Awatech12/kishiface/internal/router"
	"github.com/Awatech12/kishiface/internal/store"
)

const (
	// frameTimeout bounds the store work a single inbound frame may do.
	frameTimeout = 10 * time.Second

	// backfillLimit caps how many messages a join replays.
	backfillLimit = 200
)

// dispatch decodes one inbound frame and routes it to its handler. A
// protocol error answers with an error frame and leaves the connection
// open.
func (g *Gateway) dispatch(conn *registry.Conn, data []byte) {
	frame, err := protocol.ParseInbound(data)
	if err != nil {
		observability.IncWSFrame("in", "invalid")
		code := "malformed_frame"
		if errors.Is(err, protocol.ErrUnknownType) {
			code = "unknown_type"
		}
		g.sendError(conn, code, err.Error())
		return
	}
	observability.IncWSFrame("in", string(frame.Type))

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	switch frame.Type {
	case protocol.FrameJoinRoom:
		g.handleJoin(ctx, conn, frame)
	case protocol.FrameLeaveRoom:
		g.handleLeave(conn, frame)
	case protocol.FrameSendMessage:
		g.handleSend(ctx, conn, frame)
	case protocol.FrameTyping:
		g.handleTyping(conn, frame)
	case protocol.FrameMarkRead:
		g.handleMarkRead(ctx, conn, frame)
	case protocol.FrameToggleReaction:
		g.handleReaction(ctx, conn, frame)
	case protocol.FrameHeartbeat:
		g.presence.Heartbeat(conn.UserID)
	case protocol.FrameGetUnreadCounts:
		g.handleGetUnreadCounts(ctx, conn)
	}
}

// handleJoin subscribes the connection to the room and, when the client
// supplies its last seen sequence, replays everything after it so a
// reconnect never leaves a gap.
func (g *Gateway) handleJoin(ctx context.Context, conn *registry.Conn, frame protocol.Inbound) {
	room, err := models.ParseRoom(frame.Room)
	if err != nil {
		g.sendError(conn, "invalid_room", frame.Room)
		return
	}
	if err := g.router.Authorize(ctx, room, conn.UserID); err != nil {
		g.sendError(conn, errorCode(err), room.String())
		return
	}

	// a direct room exists the moment either party joins it
	if room.Kind == models.RoomDirect {
		for _, userID := range []int{room.UserA, room.UserB} {
			if err := g.store.EnsureMembership(ctx, room.String(), userID); err != nil {
				log.Printf("gateway: ensure membership room=%s user=%d: %v", room, userID, err)
			}
		}
	}

	if err := g.router.Subscribe(ctx, room, conn.ID, frame.After, backfillLimit); err != nil {
		g.sendError(conn, errorCode(err), room.String())
	}
}

func (g *Gateway) handleLeave(conn *registry.Conn, frame protocol.Inbound) {
	room, err := models.ParseRoom(frame.Room)
	if err != nil {
		g.sendError(conn, "invalid_room", frame.Room)
		return
	}
	g.dir.Leave(room, conn.ID)
}

func (g *Gateway) handleSend(ctx context.Context, conn *registry.Conn, frame protocol.Inbound) {
	room, err := models.ParseRoom(frame.Room)
	if err != nil {
		g.sendError(conn, "invalid_room", frame.Room)
		return
	}

	var attachmentURL, attachmentKind string
	if frame.Attachment != "" {
		attachmentURL, attachmentKind, err = g.resolver.Resolve(ctx, frame.Attachment)
		if err != nil {
			g.sendError(conn, "unsupported_attachment", frame.Attachment)
			return
		}
	}

	if _, err := g.router.Publish(ctx, room, conn.UserID, frame.Content, attachmentURL, attachmentKind); err != nil {
		g.sendError(conn, errorCode(err), room.String())
	}
}

func (g *Gateway) handleTyping(conn *registry.Conn, frame protocol.Inbound) {
	room, err := models.ParseRoom(frame.Room)
	if err != nil {
		g.sendError(conn, "invalid_room", frame.Room)
		return
	}
	if !g.dir.Contains(room, conn.ID) {
		g.sendError(conn, "not_joined", room.String())
		return
	}
	g.router.Typing(room, conn.UserID, frame.IsTyping)
}

// handleMarkRead advances the watermark, confirms to the sending
// connection and refreshes unread counters on the user's other devices.
func (g *Gateway) handleMarkRead(ctx context.Context, conn *registry.Conn, frame protocol.Inbound) {
	room, err := models.ParseRoom(frame.Room)
	if err != nil {
		g.sendError(conn, "invalid_room", frame.Room)
		return
	}
	if err := g.router.Authorize(ctx, room, conn.UserID); err != nil {
		g.sendError(conn, errorCode(err), room.String())
		return
	}

	stored, changed, err := g.ledger.MarkRead(ctx, room.String(), conn.UserID, frame.Sequence)
	if err != nil {
		g.sendError(conn, "storage_unavailable", room.String())
		return
	}

	ack := protocol.Event{
		Type:     protocol.FrameMarkedAsRead,
		Room:     room.String(),
		Sequence: stored,
	}
	g.reg.Send(conn.ID, ack.Encode(), true)

	if !changed {
		return
	}
	count, err := g.ledger.UnreadCount(ctx, room.String(), conn.UserID)
	if err != nil {
		return
	}
	total, err := g.ledger.TotalUnread(ctx, conn.UserID)
	if err != nil {
		return
	}
	update := protocol.Event{
		Type:        protocol.FrameUnreadUpdate,
		Room:        room.String(),
		UserID:      conn.UserID,
		UnreadCount: &count,
		TotalUnread: &total,
	}
	g.router.SendToUser(conn.UserID, update, false)
}

func (g *Gateway) handleReaction(ctx context.Context, conn *registry.Conn, frame protocol.Inbound) {
	room, err := models.ParseRoom(frame.Room)
	if err != nil {
		g.sendError(conn, "invalid_room", frame.Room)
		return
	}
	if frame.Emoji == "" || frame.MessageID == 0 {
		g.sendError(conn, "malformed_frame", "missing message_id or emoji")
		return
	}
	if _, err := g.router.React(ctx, room, conn.UserID, frame.MessageID, frame.Emoji); err != nil {
		g.sendError(conn, errorCode(err), room.String())
	}
}

// handleGetUnreadCounts pushes one unread_update per room the user
// belongs to, each carrying the running total.
func (g *Gateway) handleGetUnreadCounts(ctx context.Context, conn *registry.Conn) {
	roomIDs, err := g.store.ListRoomsForUser(ctx, conn.UserID)
	if err != nil {
		g.sendError(conn, "storage_unavailable", "")
		return
	}
	total, err := g.ledger.TotalUnread(ctx, conn.UserID)
	if err != nil {
		g.sendError(conn, "storage_unavailable", "")
		return
	}
	for _, roomID := range roomIDs {
		count, err := g.ledger.UnreadCount(ctx, roomID, conn.UserID)
		if err != nil {
			continue
		}
		update := protocol.Event{
			Type:        protocol.FrameUnreadUpdate,
			Room:        roomID,
			UserID:      conn.UserID,
			UnreadCount: &count,
			TotalUnread: &total,
		}
		g.reg.Send(conn.ID, update.Encode(), false)
	}
}

func (g *Gateway) sendError(conn *registry.Conn, code, detail string) {
	observability.IncWSFrame("out", string(protocol.FrameError))
	g.reg.Send(conn.ID, protocol.ErrorEvent(code, detail).Encode(), false)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidRoom):
		return "invalid_room"
	case errors.Is(err, router.ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, router.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, router.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, store.ErrMessageNotFound):
		return "message_not_found"
	case errors.Is(err, media.ErrUnsupportedAttachment):
		return "unsupported_attachment"
	}
	return "internal_error"
}
