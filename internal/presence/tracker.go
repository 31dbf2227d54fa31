package presence

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Awatech12/kishiface/internal/observability"
)

const (
	// DefaultWindow is the sliding heartbeat window. A user with no
	// heartbeat inside it degrades to Offline at the next sweep.
	DefaultWindow = 60 * time.Second

	// DefaultSweepInterval is how often stale users are swept offline.
	DefaultSweepInterval = 15 * time.Second
)

// Event is a presence state change.
type Event struct {
	UserID   int       `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

type userState struct {
	conns    int
	lastBeat time.Time
	online   bool
}

// Tracker derives per-user online state from connection lifecycle and
// heartbeats. Abrupt disconnects never deliver OnDisconnect, so a
// periodic sweep degrades users whose heartbeats went quiet.
type Tracker struct {
	mu    sync.Mutex
	users map[int]*userState

	window        time.Duration
	sweepInterval time.Duration

	subsMu sync.RWMutex
	subs   []func(Event)

	// optional last-seen mirror for other services; nil disables it
	rdb *redis.Client

	done     chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker. Zero durations fall back to the
// defaults; rdb may be nil.
func NewTracker(window, sweepInterval time.Duration, rdb *redis.Client) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Tracker{
		users:         make(map[int]*userState),
		window:        window,
		sweepInterval: sweepInterval,
		rdb:           rdb,
		done:          make(chan struct{}),
	}
}

// Subscribe registers a callback invoked on every presence change.
func (t *Tracker) Subscribe(fn func(Event)) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	t.subs = append(t.subs, fn)
}

// OnConnect records a new live connection for the user and marks them
// online. The connect itself counts as a heartbeat.
func (t *Tracker) OnConnect(userID int) {
	now := time.Now()
	t.mu.Lock()
	state := t.ensureLocked(userID)
	state.conns++
	state.lastBeat = now
	changed := !state.online
	state.online = true
	t.mu.Unlock()

	t.mirror(userID, now)
	if changed {
		t.notify(Event{UserID: userID, Online: true, LastSeen: now})
	}
}

// OnDisconnect records a closed connection. The user goes offline once
// their last connection is gone.
func (t *Tracker) OnDisconnect(userID int) {
	t.mu.Lock()
	state := t.ensureLocked(userID)
	if state.conns > 0 {
		state.conns--
	}
	changed := state.conns == 0 && state.online
	if changed {
		state.online = false
	}
	lastSeen := state.lastBeat
	t.mu.Unlock()

	if changed {
		t.notify(Event{UserID: userID, Online: false, LastSeen: lastSeen})
	}
}

// Heartbeat refreshes the user's sliding window and revives them if a
// sweep had degraded them while a connection was still alive.
func (t *Tracker) Heartbeat(userID int) {
	now := time.Now()
	t.mu.Lock()
	state := t.ensureLocked(userID)
	state.lastBeat = now
	changed := !state.online && state.conns > 0
	if changed {
		state.online = true
	}
	t.mu.Unlock()

	t.mirror(userID, now)
	if changed {
		t.notify(Event{UserID: userID, Online: true, LastSeen: now})
	}
}

// IsOnline reports the user's current state.
func (t *Tracker) IsOnline(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.users[userID]
	return ok && state.online
}

// LastSeen returns the user's last heartbeat time.
func (t *Tracker) LastSeen(userID int) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.users[userID]
	if !ok {
		return time.Time{}, false
	}
	return state.lastBeat, true
}

// Run sweeps until Stop is called.
func (t *Tracker) Run() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.done:
			return
		}
	}
}

// Stop terminates the sweep loop.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// sweep degrades users whose heartbeat window elapsed. A user is only
// swept when now-lastBeat exceeds the window, never earlier.
func (t *Tracker) sweep(now time.Time) {
	observability.IncPresenceSweep()

	var events []Event
	t.mu.Lock()
	for userID, state := range t.users {
		if !state.online {
			if state.conns == 0 {
				delete(t.users, userID)
			}
			continue
		}
		if now.Sub(state.lastBeat) > t.window {
			state.online = false
			events = append(events, Event{UserID: userID, Online: false, LastSeen: state.lastBeat})
		}
	}
	t.mu.Unlock()

	for _, ev := range events {
		t.notify(ev)
	}
}

func (t *Tracker) ensureLocked(userID int) *userState {
	state, ok := t.users[userID]
	if !ok {
		state = &userState{}
		t.users[userID] = state
	}
	return state
}

func (t *Tracker) notify(ev Event) {
	t.subsMu.RLock()
	subs := t.subs
	t.subsMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// mirror writes the last-seen timestamp to redis with the window as TTL
// so sibling services can read liveness without a round trip to us.
func (t *Tracker) mirror(userID int, at time.Time) {
	if t.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key := "presence:user:" + strconv.Itoa(userID)
	if err := t.rdb.Set(ctx, key, at.UTC().Format(time.RFC3339), t.window).Err(); err != nil {
		log.Printf("presence: redis mirror failed for user %d: %v", userID, err)
	}
}
