package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectRoomCanonicalOrder(t *testing.T) {
	assert.Equal(t, DirectRoom(7, 3), DirectRoom(3, 7))
	assert.Equal(t, "dm:3:7", DirectRoom(7, 3).String())
}

func TestParseRoomDirect(t *testing.T) {
	room, err := ParseRoom("dm:9:2")
	require.NoError(t, err)
	assert.Equal(t, DirectRoom(2, 9), room)
	assert.Equal(t, "dm:2:9", room.String())
}

func TestParseRoomChannelAndTopic(t *testing.T) {
	room, err := ParseRoom("channel:announcements")
	require.NoError(t, err)
	assert.Equal(t, RoomChannel, room.Kind)
	assert.Equal(t, "channel:announcements", room.String())

	room, err = ParseRoom("topic:presence")
	require.NoError(t, err)
	assert.Equal(t, PresenceTopic, room)
}

func TestParseRoomInvalid(t *testing.T) {
	for _, raw := range []string{"", "dm:", "dm:1", "dm:1:1", "dm:a:b", "dm:0:2", "general", "queue:x"} {
		_, err := ParseRoom(raw)
		assert.ErrorIs(t, err, ErrInvalidRoom, "input %q", raw)
	}
}

func TestRoomHasUser(t *testing.T) {
	room := DirectRoom(4, 8)
	assert.True(t, room.HasUser(4))
	assert.True(t, room.HasUser(8))
	assert.False(t, room.HasUser(5))
	assert.True(t, PresenceTopic.HasUser(5))
	assert.False(t, ChannelRoom("c1").HasUser(5))
}
