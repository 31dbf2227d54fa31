package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Awatech12/kishiface/internal/models"
	"github.com/Awatech12/kishiface/internal/presence"
	"github.com/Awatech12/kishiface/internal/router"
	"github.com/Awatech12/kishiface/internal/store"
	"github.com/Awatech12/kishiface/internal/unread"
)

const defaultPageSize = 50

// RoomHandler serves the read side over plain HTTP: room lists, message
// history, unread totals and presence snapshots. All writes go through
// the websocket.
type RoomHandler struct {
	store   store.Store
	ledger  *unread.Ledger
	tracker *presence.Tracker
	router  *router.Router
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(s store.Store, ledger *unread.Ledger, tracker *presence.Tracker, rt *router.Router) *RoomHandler {
	return &RoomHandler{store: s, ledger: ledger, tracker: tracker, router: rt}
}

// ListRooms returns the caller's rooms with per-room unread counts.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")

	roomIDs, err := h.store.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	rooms := make([]models.RoomUnread, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		count, err := h.ledger.UnreadCount(c.Request.Context(), roomID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
			return
		}
		rooms = append(rooms, models.RoomUnread{Room: roomID, UnreadCount: count})
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetMessages returns room history after a sequence, ascending.
func (h *RoomHandler) GetMessages(c *gin.Context) {
	room, err := models.ParseRoom(c.Param("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.router.Authorize(c.Request.Context(), room, userID); err != nil {
		if errors.Is(err, router.ErrNotAMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}

	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	msgs, err := h.store.MessagesAfter(c.Request.Context(), room.String(), after, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room.String(), "messages": msgs})
}

// GetTotalUnread returns the caller's unread total across all rooms.
func (h *RoomHandler) GetTotalUnread(c *gin.Context) {
	userID := c.GetInt("userID")

	total, err := h.ledger.TotalUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread total"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"total_unread": total})
}

// GetPresence returns a point-in-time presence snapshot for one user.
func (h *RoomHandler) GetPresence(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || targetID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	resp := gin.H{
		"user_id": targetID,
		"online":  h.tracker.IsOnline(targetID),
	}
	if lastSeen, ok := h.tracker.LastSeen(targetID); ok {
		resp["last_seen"] = lastSeen
	}
	c.JSON(http.StatusOK, resp)
}
