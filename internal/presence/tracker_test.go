package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestConnectMarksOnline(t *testing.T) {
	tracker := NewTracker(time.Minute, time.Minute, nil)
	sink := &eventSink{}
	tracker.Subscribe(sink.record)

	assert.False(t, tracker.IsOnline(1))
	tracker.OnConnect(1)
	assert.True(t, tracker.IsOnline(1))

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].Online)
	assert.Equal(t, 1, events[0].UserID)
}

func TestSecondConnectionEmitsNoDuplicateEvent(t *testing.T) {
	tracker := NewTracker(time.Minute, time.Minute, nil)
	sink := &eventSink{}
	tracker.Subscribe(sink.record)

	tracker.OnConnect(1)
	tracker.OnConnect(1)
	assert.Len(t, sink.snapshot(), 1)

	tracker.OnDisconnect(1)
	assert.True(t, tracker.IsOnline(1), "still one live connection")
	tracker.OnDisconnect(1)
	assert.False(t, tracker.IsOnline(1))

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.False(t, events[1].Online)
}

func TestSweepDegradesStaleHeartbeat(t *testing.T) {
	window := 30 * time.Millisecond
	tracker := NewTracker(window, time.Minute, nil)
	sink := &eventSink{}
	tracker.Subscribe(sink.record)

	tracker.OnConnect(1)

	// inside the window the sweep must not touch the user
	tracker.sweep(time.Now())
	assert.True(t, tracker.IsOnline(1))

	time.Sleep(window + 10*time.Millisecond)
	tracker.sweep(time.Now())
	assert.False(t, tracker.IsOnline(1))

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.False(t, events[1].Online)
}

func TestHeartbeatRevivesSweptUser(t *testing.T) {
	window := 20 * time.Millisecond
	tracker := NewTracker(window, time.Minute, nil)

	tracker.OnConnect(1)
	time.Sleep(window + 10*time.Millisecond)
	tracker.sweep(time.Now())
	require.False(t, tracker.IsOnline(1))

	tracker.Heartbeat(1)
	assert.True(t, tracker.IsOnline(1))
}

func TestHeartbeatWithoutConnectionStaysOffline(t *testing.T) {
	tracker := NewTracker(time.Minute, time.Minute, nil)

	tracker.Heartbeat(7)
	assert.False(t, tracker.IsOnline(7), "online requires a live connection")

	last, ok := tracker.LastSeen(7)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), last, time.Second)
}

func TestRunSweepsPeriodically(t *testing.T) {
	window := 20 * time.Millisecond
	tracker := NewTracker(window, 10*time.Millisecond, nil)
	defer tracker.Stop()
	go tracker.Run()

	tracker.OnConnect(1)
	assert.Eventually(t, func() bool { return !tracker.IsOnline(1) },
		time.Second, 5*time.Millisecond, "user with no heartbeats goes offline within window+sweep")
}
