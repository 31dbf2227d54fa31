package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Send pings to the peer with this period.
	pingPeriod = 54 * time.Second
)

// ConnID identifies a registered connection. Components other than the
// registry hold ConnIDs, never *Conn, so a closed connection cannot be
// kept alive through a stale reference.
type ConnID string

// State is the connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// socket is the subset of *websocket.Conn the registry writes to.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live (user, device) connection with its bounded outbound
// queues. Durable frames (chat messages, reactions, backfill) ride send;
// droppable frames (typing, presence, unread updates) ride lossy, so
// queue pressure from one class never discards frames of the other. The
// registry owns the Conn exclusively.
type Conn struct {
	ID          ConnID
	UserID      int
	DeviceID    string
	ConnectedAt time.Time

	sock      socket
	send      chan []byte
	lossy     chan []byte
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once
}

func newConn(userID int, deviceID string, sock socket, queueSize int) *Conn {
	c := &Conn{
		ID:          ConnID(uuid.NewString()),
		UserID:      userID,
		DeviceID:    deviceID,
		ConnectedAt: time.Now(),
		sock:        sock,
		send:        make(chan []byte, queueSize),
		lossy:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// close transitions to Closed, wakes pending senders and drops any
// queued frames. Idempotent.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateDraining))
		close(c.done)
		// drain queued frames so no further delivery is attempted
		for {
			select {
			case <-c.send:
			case <-c.lossy:
			default:
				c.state.Store(int32(StateClosed))
				_ = c.sock.Close()
				return
			}
		}
	})
}

// WritePump drains both queues onto the socket and keeps the peer alive
// with pings. Ordering is guaranteed within the durable queue; droppable
// frames may interleave freely. Run in its own goroutine per connection;
// exits when the connection closes or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case payload := <-c.lossy:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
