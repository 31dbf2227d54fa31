package gateway

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/Awatech12/kishiface/internal/auth"
	"github.com/Awatech12/kishiface/internal/media"
	"github.com/Awatech12/kishiface/internal/observability"
	"github.com/Awatech12/kishiface/internal/presence"
	"github.com/Awatech12/kishiface/internal/registry"
	"github.com/Awatech12/kishiface/internal/rooms"
	"github.com/Awatech12/kishiface/internal/router"
	"github.com/Awatech12/kishiface/internal/store"
	"github.com/Awatech12/kishiface/internal/unread"
)

const (
	// DefaultHandshakeTimeout bounds authentication so unauthenticated
	// sockets cannot pile up.
	DefaultHandshakeTimeout = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Maximum inbound frame size.
	maxFrameSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is the public entry point: it authenticates a socket, binds it
// into the registry and dispatches inbound frames to the engine.
type Gateway struct {
	reg      *registry.Registry
	dir      *rooms.Directory
	router   *router.Router
	ledger   *unread.Ledger
	presence *presence.Tracker
	auth     auth.Authenticator
	store    store.Store
	resolver media.Resolver

	handshakeTimeout time.Duration
}

// NewGateway wires the gateway to the engine components.
func NewGateway(reg *registry.Registry, dir *rooms.Directory, rt *router.Router, ledger *unread.Ledger, tracker *presence.Tracker, authenticator auth.Authenticator, s store.Store, resolver media.Resolver) *Gateway {
	return &Gateway{
		reg:              reg,
		dir:              dir,
		router:           rt,
		ledger:           ledger,
		presence:         tracker,
		auth:             authenticator,
		store:            s,
		resolver:         resolver,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
}

// Handle upgrades the connection, authenticates it and runs the read
// loop until the peer goes away.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("kishiface/gateway").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	authCtx, cancel := context.WithTimeout(ctx, g.handshakeTimeout)
	userID, deviceID, err := g.auth.Authenticate(authCtx, token)
	cancel()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if deviceID == "" {
		deviceID = observability.DeviceIDFromRequest(c.Request)
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := g.reg.Register(userID, deviceID, sock)
	g.presence.OnConnect(userID)

	requestID := observability.RequestIDFromRequest(c.Request)
	traceID := span.SpanContext().TraceID().String()
	ip := observability.IPFromRequest(c.Request)
	g.publishSessionEvent(ctx, conn, ip, "ws_connect", "", requestID, traceID)

	go conn.WritePump()
	go g.readLoop(conn, sock, ip, requestID, traceID)
}

// readLoop pumps inbound frames into the dispatch table and tears the
// session down when the socket closes.
func (g *Gateway) readLoop(conn *registry.Conn, sock *websocket.Conn, ip, requestID, traceID string) {
	var closeReason string
	defer func() {
		g.dir.LeaveAll(conn.ID)
		g.reg.Unregister(conn.ID)
		g.presence.OnDisconnect(conn.UserID)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		g.publishSessionEvent(ctx, conn, ip, "ws_disconnect", closeReason, requestID, traceID)
		cancel()
	}()

	sock.SetReadLimit(maxFrameSize)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("gateway: read error conn=%s: %v", conn.ID, err)
			}
			return
		}
		g.dispatch(conn, data)
	}
}

func (g *Gateway) publishSessionEvent(ctx context.Context, conn *registry.Conn, ip, event, reason, requestID, traceID string) {
	_ = observability.PublishEvent(ctx, observability.RouteSessionEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.SessionPayload{
			ConnID:     string(conn.ID),
			UserID:     conn.UserID,
			DeviceID:   conn.DeviceID,
			IP:         ip,
			Event:      event,
			DurationMs: time.Since(conn.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
	}, observability.BuildHeaders(requestID, traceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
