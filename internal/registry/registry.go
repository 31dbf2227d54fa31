package registry

import (
	"log"
	"sync"
	"time"

	"github.com/Awatech12/kishiface/internal/observability"
)

const (
	// DefaultQueueSize bounds each connection's outbound queue.
	DefaultQueueSize = 256

	// DefaultSendTimeout is how long a durable send may block on a full
	// queue before the connection is treated as a slow consumer.
	DefaultSendTimeout = 5 * time.Second
)

// SendResult is the outcome of a Send call.
type SendResult int

const (
	SendOK SendResult = iota
	SendBackpressured
	SendClosed
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "ok"
	case SendBackpressured:
		return "backpressured"
	case SendClosed:
		return "closed"
	}
	return "unknown"
}

type deviceKey struct {
	userID   int
	deviceID string
}

// Registry tracks one live connection per (user, device) pair and owns
// the send side of every connection.
type Registry struct {
	mu          sync.RWMutex
	conns       map[ConnID]*Conn
	byUser      map[int]map[ConnID]*Conn
	byDevice    map[deviceKey]ConnID
	queueSize   int
	sendTimeout time.Duration
}

// NewRegistry creates an empty registry. Zero arguments fall back to the
// defaults.
func NewRegistry(queueSize int, sendTimeout time.Duration) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Registry{
		conns:       make(map[ConnID]*Conn),
		byUser:      make(map[int]map[ConnID]*Conn),
		byDevice:    make(map[deviceKey]ConnID),
		queueSize:   queueSize,
		sendTimeout: sendTimeout,
	}
}

// Register binds a freshly authenticated socket into the registry. An
// existing connection for the same (user, device) is evicted first so a
// reconnecting device never races its own ghost.
func (r *Registry) Register(userID int, deviceID string, sock socket) *Conn {
	conn := newConn(userID, deviceID, sock, r.queueSize)
	key := deviceKey{userID: userID, deviceID: deviceID}

	r.mu.Lock()
	var prev *Conn
	if prevID, ok := r.byDevice[key]; ok {
		if prev = r.conns[prevID]; prev != nil {
			r.removeLocked(prev)
		}
	}
	r.conns[conn.ID] = conn
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[ConnID]*Conn)
	}
	r.byUser[userID][conn.ID] = conn
	r.byDevice[key] = conn.ID
	conn.state.Store(int32(StateOpen))
	r.mu.Unlock()

	if prev != nil {
		prev.close()
		observability.DecWSActive()
		log.Printf("registry: evicted duplicate device connection user=%d device=%s", userID, deviceID)
	}
	observability.IncWSActive()
	return conn
}

// Unregister removes and closes the connection. Idempotent.
func (r *Registry) Unregister(id ConnID) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		r.removeLocked(conn)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	conn.close()
	observability.DecWSActive()
}

func (r *Registry) removeLocked(conn *Conn) {
	delete(r.conns, conn.ID)
	if userConns, ok := r.byUser[conn.UserID]; ok {
		delete(userConns, conn.ID)
		if len(userConns) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
	key := deviceKey{userID: conn.UserID, deviceID: conn.DeviceID}
	if r.byDevice[key] == conn.ID {
		delete(r.byDevice, key)
	}
}

// Lookup resolves a connection id. Callers must not retain the *Conn.
func (r *Registry) Lookup(id ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// ConnsForUser returns the ids of the user's live connections.
func (r *Registry) ConnsForUser(userID int) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ConnID, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// ConnCountForUser reports how many live connections the user holds.
func (r *Registry) ConnCountForUser(userID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Send enqueues a frame for delivery. Durable frames block up to the
// backpressure timeout when their queue is full; if the timeout elapses
// the connection is evicted as a slow consumer and SendBackpressured is
// returned. Ephemeral frames ride a separate queue and drop the oldest
// ephemeral frame instead, so the connection stays open, they are never
// evicted on their account, and a queued chat message can never be
// sacrificed to admit a typing indicator.
func (r *Registry) Send(id ConnID, payload []byte, durable bool) SendResult {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok || conn.State() != StateOpen {
		return SendClosed
	}

	if durable {
		return r.sendDurable(conn, payload)
	}
	return r.sendEphemeral(conn, payload)
}

func (r *Registry) sendDurable(conn *Conn, payload []byte) SendResult {
	select {
	case conn.send <- payload:
		return SendOK
	case <-conn.done:
		return SendClosed
	default:
	}

	timer := time.NewTimer(r.sendTimeout)
	defer timer.Stop()
	select {
	case conn.send <- payload:
		return SendOK
	case <-conn.done:
		return SendClosed
	case <-timer.C:
		log.Printf("registry: evicting slow consumer conn=%s user=%d", conn.ID, conn.UserID)
		observability.IncSlowConsumerEviction()
		r.Unregister(conn.ID)
		return SendBackpressured
	}
}

func (r *Registry) sendEphemeral(conn *Conn, payload []byte) SendResult {
	for {
		select {
		case conn.lossy <- payload:
			return SendOK
		case <-conn.done:
			return SendClosed
		default:
		}
		// queue full: sacrifice the oldest ephemeral frame and retry
		select {
		case <-conn.lossy:
			observability.IncDroppedEphemeral()
		default:
		}
	}
}
