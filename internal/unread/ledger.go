package unread

import (
	"context"
	"sync"

	"github.com/Awatech12/kishiface/internal/store"
)

type watermarkKey struct {
	room   string
	userID int
}

// Ledger answers unread counts as max(0, latestSequence - watermark)
// without ever enumerating messages, and keeps watermarks monotonic. It
// caches watermarks and per-room latest sequences in front of the store.
type Ledger struct {
	store store.Store

	mu         sync.Mutex
	watermarks map[watermarkKey]int64
	latest     map[string]int64
}

// NewLedger builds a ledger on top of the durable store.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{
		store:      s,
		watermarks: make(map[watermarkKey]int64),
		latest:     make(map[string]int64),
	}
}

// NoteMessage records a freshly assigned sequence so subsequent unread
// queries see it without a store round trip. Called by the router after
// every successful persist.
func (l *Ledger) NoteMessage(room string, sequence int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sequence > l.latest[room] {
		l.latest[room] = sequence
	}
}

// MarkRead advances the user's watermark. An update with a sequence below
// the stored value is ignored, so an out-of-order mark-read can never
// drag the watermark backwards. Returns the stored watermark and whether
// it moved.
func (l *Ledger) MarkRead(ctx context.Context, room string, userID int, sequence int64) (int64, bool, error) {
	key := watermarkKey{room: room, userID: userID}

	l.mu.Lock()
	cached, haveCached := l.watermarks[key]
	l.mu.Unlock()

	if haveCached && sequence <= cached {
		return cached, false, nil
	}

	// the store applies GREATEST, so a concurrent higher watermark wins
	stored, err := l.store.PersistWatermark(ctx, room, userID, sequence)
	if err != nil {
		return 0, false, err
	}

	l.mu.Lock()
	if stored > l.watermarks[key] {
		l.watermarks[key] = stored
	}
	l.mu.Unlock()

	changed := !haveCached || stored > cached
	return stored, changed, nil
}

// UnreadCount computes the user's unread count for the room.
func (l *Ledger) UnreadCount(ctx context.Context, room string, userID int) (int64, error) {
	latest, err := l.latestSequence(ctx, room)
	if err != nil {
		return 0, err
	}
	mark, err := l.watermark(ctx, room, userID)
	if err != nil {
		return 0, err
	}
	if mark >= latest {
		return 0, nil
	}
	return latest - mark, nil
}

// TotalUnread sums UnreadCount over the rooms the user belongs to. It is
// advisory: membership and per-room counts are read independently, so
// callers must tolerate brief staleness.
func (l *Ledger) TotalUnread(ctx context.Context, userID int) (int64, error) {
	roomIDs, err := l.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, room := range roomIDs {
		count, err := l.UnreadCount(ctx, room, userID)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (l *Ledger) latestSequence(ctx context.Context, room string) (int64, error) {
	l.mu.Lock()
	latest, ok := l.latest[room]
	l.mu.Unlock()
	if ok {
		return latest, nil
	}

	latest, err := l.store.LatestSequence(ctx, room)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	if latest > l.latest[room] {
		l.latest[room] = latest
	}
	latest = l.latest[room]
	l.mu.Unlock()
	return latest, nil
}

func (l *Ledger) watermark(ctx context.Context, room string, userID int) (int64, error) {
	key := watermarkKey{room: room, userID: userID}
	l.mu.Lock()
	mark, ok := l.watermarks[key]
	l.mu.Unlock()
	if ok {
		return mark, nil
	}

	mark, err := l.store.Watermark(ctx, room, userID)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	if mark > l.watermarks[key] {
		l.watermarks[key] = mark
	}
	mark = l.watermarks[key]
	l.mu.Unlock()
	return mark, nil
}
