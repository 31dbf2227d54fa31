package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu     sync.Mutex
	closed bool
	writes [][]byte
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegisterAndUnregister(t *testing.T) {
	reg := NewRegistry(0, 0)
	conn := reg.Register(1, "phone", &fakeSocket{})

	assert.Equal(t, StateOpen, conn.State())
	assert.Equal(t, 1, reg.ConnCountForUser(1))

	reg.Unregister(conn.ID)
	assert.Equal(t, StateClosed, conn.State())
	assert.Equal(t, 0, reg.ConnCountForUser(1))

	// idempotent
	reg.Unregister(conn.ID)
}

func TestDuplicateDeviceEvicted(t *testing.T) {
	reg := NewRegistry(0, 0)
	first := reg.Register(1, "phone", &fakeSocket{})
	second := reg.Register(1, "phone", &fakeSocket{})

	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, StateOpen, second.State())
	assert.Equal(t, 1, reg.ConnCountForUser(1))
}

func TestMultiDeviceConnections(t *testing.T) {
	reg := NewRegistry(0, 0)
	phone := reg.Register(1, "phone", &fakeSocket{})
	laptop := reg.Register(1, "laptop", &fakeSocket{})

	ids := reg.ConnsForUser(1)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, phone.ID)
	assert.Contains(t, ids, laptop.ID)
}

func TestSendToClosedConnection(t *testing.T) {
	reg := NewRegistry(0, 0)
	conn := reg.Register(1, "phone", &fakeSocket{})
	reg.Unregister(conn.ID)

	assert.Equal(t, SendClosed, reg.Send(conn.ID, []byte("x"), true))
	assert.Equal(t, SendClosed, reg.Send(ConnID("missing"), []byte("x"), false))
}

func TestEphemeralOverflowDropsOldestWithoutEviction(t *testing.T) {
	reg := NewRegistry(256, time.Second)
	conn := reg.Register(1, "phone", &fakeSocket{})

	// no write pump running: the queue fills and stays full
	for i := 0; i < 300; i++ {
		result := reg.Send(conn.ID, []byte{byte(i)}, false)
		require.Equal(t, SendOK, result)
	}

	assert.Equal(t, StateOpen, conn.State())
	assert.Len(t, conn.lossy, 256)

	// oldest frames were sacrificed: the head of the queue is frame 44
	head := <-conn.lossy
	assert.Equal(t, []byte{44}, head)
}

func TestEphemeralPressureNeverDropsQueuedDurableFrames(t *testing.T) {
	reg := NewRegistry(4, time.Second)
	conn := reg.Register(1, "phone", &fakeSocket{})

	// no write pump running: the durable queue fills and stays full
	chat := [][]byte{[]byte("m0"), []byte("m1"), []byte("m2"), []byte("m3")}
	for _, payload := range chat {
		require.Equal(t, SendOK, reg.Send(conn.ID, payload, true))
	}

	// ephemeral frames past both capacities still succeed
	for i := 0; i < 6; i++ {
		require.Equal(t, SendOK, reg.Send(conn.ID, []byte{byte(i)}, false))
	}

	assert.Equal(t, StateOpen, conn.State())

	// every queued chat frame survives, in order
	require.Len(t, conn.send, 4)
	for _, payload := range chat {
		assert.Equal(t, payload, <-conn.send)
	}

	// only ephemeral frames were sacrificed to ephemeral pressure
	assert.Len(t, conn.lossy, 4)
	assert.Equal(t, []byte{2}, <-conn.lossy)
}

func TestDurableOverflowEvictsSlowConsumer(t *testing.T) {
	sock := &fakeSocket{}
	reg := NewRegistry(4, 30*time.Millisecond)
	conn := reg.Register(1, "phone", sock)

	for i := 0; i < 4; i++ {
		require.Equal(t, SendOK, reg.Send(conn.ID, []byte("msg"), true))
	}

	result := reg.Send(conn.ID, []byte("overflow"), true)
	assert.Equal(t, SendBackpressured, result)
	assert.Equal(t, StateClosed, conn.State())
	assert.True(t, sock.isClosed())
	assert.Equal(t, 0, reg.ConnCountForUser(1))
}

func TestDurableSendUnblocksWhenDrained(t *testing.T) {
	reg := NewRegistry(1, time.Second)
	conn := reg.Register(1, "phone", &fakeSocket{})

	require.Equal(t, SendOK, reg.Send(conn.ID, []byte("a"), true))

	go func() {
		time.Sleep(10 * time.Millisecond)
		<-conn.send
	}()

	assert.Equal(t, SendOK, reg.Send(conn.ID, []byte("b"), true))
	assert.Equal(t, StateOpen, conn.State())
}

func TestWritePumpDeliversQueuedFrames(t *testing.T) {
	sock := &fakeSocket{}
	reg := NewRegistry(8, time.Second)
	conn := reg.Register(1, "phone", sock)

	require.Equal(t, SendOK, reg.Send(conn.ID, []byte("one"), true))
	require.Equal(t, SendOK, reg.Send(conn.ID, []byte("two"), true))

	done := make(chan struct{})
	go func() {
		conn.WritePump()
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sock.mu.Lock()
		defer sock.mu.Unlock()
		return len(sock.writes) == 2
	}, time.Second, 5*time.Millisecond)

	sock.mu.Lock()
	assert.Equal(t, []byte("one"), sock.writes[0])
	assert.Equal(t, []byte("two"), sock.writes[1])
	sock.mu.Unlock()

	reg.Unregister(conn.ID)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit on close")
	}
}
