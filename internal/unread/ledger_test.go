package unread

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Awatech12/kishiface/internal/mocks"
)

func TestUnreadCountFormula(t *testing.T) {
	st := new(mocks.StoreMock)
	ledger := NewLedger(st)
	ctx := context.Background()

	st.On("LatestSequence", mock.Anything, "channel:c1").Return(int64(5), nil).Once()
	st.On("Watermark", mock.Anything, "channel:c1", 1).Return(int64(3), nil).Once()

	count, err := ledger.UnreadCount(ctx, "channel:c1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	st.AssertExpectations(t)
}

func TestUnreadCountNeverNegative(t *testing.T) {
	st := new(mocks.StoreMock)
	ledger := NewLedger(st)
	ctx := context.Background()

	// watermark beyond latest, e.g. after a room reset elsewhere
	st.On("LatestSequence", mock.Anything, "channel:c1").Return(int64(2), nil).Once()
	st.On("Watermark", mock.Anything, "channel:c1", 1).Return(int64(9), nil).Once()

	count, err := ledger.UnreadCount(ctx, "channel:c1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMarkReadMonotonic(t *testing.T) {
	st := new(mocks.StoreMock)
	ledger := NewLedger(st)
	ctx := context.Background()

	st.On("PersistWatermark", mock.Anything, "dm:1:2", 2, int64(5)).Return(int64(5), nil).Once()

	stored, changed, err := ledger.MarkRead(ctx, "dm:1:2", 2, 5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(5), stored)

	// a stale mark-read racing behind must not move the watermark back
	stored, changed, err = ledger.MarkRead(ctx, "dm:1:2", 2, 4)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(5), stored)

	st.AssertExpectations(t)
}

func TestMarkFullyReadIsIdempotent(t *testing.T) {
	st := new(mocks.StoreMock)
	ledger := NewLedger(st)
	ctx := context.Background()

	ledger.NoteMessage("channel:c1", 7)
	st.On("PersistWatermark", mock.Anything, "channel:c1", 1, int64(7)).Return(int64(7), nil).Once()

	_, changed, err := ledger.MarkRead(ctx, "channel:c1", 1, 7)
	require.NoError(t, err)
	assert.True(t, changed)

	count, err := ledger.UnreadCount(ctx, "channel:c1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, changed, err = ledger.MarkRead(ctx, "channel:c1", 1, 7)
	require.NoError(t, err)
	assert.False(t, changed)

	count, err = ledger.UnreadCount(ctx, "channel:c1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	st.AssertExpectations(t)
}

func TestNoteMessageAdvancesLatestWithoutStore(t *testing.T) {
	st := new(mocks.StoreMock)
	ledger := NewLedger(st)
	ctx := context.Background()

	ledger.NoteMessage("dm:1:2", 1)
	st.On("Watermark", mock.Anything, "dm:1:2", 2).Return(int64(0), nil).Once()

	count, err := ledger.UnreadCount(ctx, "dm:1:2", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	st.AssertExpectations(t)
}

func TestTotalUnreadSumsRooms(t *testing.T) {
	st := new(mocks.StoreMock)
	ledger := NewLedger(st)
	ctx := context.Background()

	ledger.NoteMessage("channel:c1", 4)
	ledger.NoteMessage("dm:1:2", 2)

	st.On("ListRoomsForUser", mock.Anything, 1).Return([]string{"channel:c1", "dm:1:2"}, nil).Once()
	st.On("Watermark", mock.Anything, "channel:c1", 1).Return(int64(1), nil).Once()
	st.On("Watermark", mock.Anything, "dm:1:2", 1).Return(int64(0), nil).Once()

	total, err := ledger.TotalUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	st.AssertExpectations(t)
}
