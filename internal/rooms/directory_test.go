package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Awatech12/kishiface/internal/models"
	"github.com/Awatech12/kishiface/internal/registry"
)

func TestJoinLeaveIdempotent(t *testing.T) {
	dir := NewDirectory()
	room := models.ChannelRoom("c1")
	conn := registry.ConnID("a")

	dir.Join(room, conn)
	dir.Join(room, conn)
	assert.Len(t, dir.Members(room), 1)

	dir.Leave(room, conn)
	dir.Leave(room, conn)
	assert.Empty(t, dir.Members(room))
}

func TestMultiDeviceSameRoom(t *testing.T) {
	dir := NewDirectory()
	room := models.DirectRoom(1, 2)
	phone := registry.ConnID("phone")
	laptop := registry.ConnID("laptop")

	dir.Join(room, phone)
	dir.Join(room, laptop)

	members := dir.Members(room)
	assert.Len(t, members, 2)
	assert.Contains(t, members, phone)
	assert.Contains(t, members, laptop)
}

func TestDirectRoomSameIdentityFromEitherSide(t *testing.T) {
	dir := NewDirectory()
	conn := registry.ConnID("a")

	dir.Join(models.DirectRoom(2, 1), conn)
	assert.True(t, dir.Contains(models.DirectRoom(1, 2), conn))
}

func TestLeaveAll(t *testing.T) {
	dir := NewDirectory()
	conn := registry.ConnID("a")
	other := registry.ConnID("b")

	dir.Join(models.ChannelRoom("c1"), conn)
	dir.Join(models.ChannelRoom("c2"), conn)
	dir.Join(models.ChannelRoom("c1"), other)

	dir.LeaveAll(conn)

	assert.Empty(t, dir.RoomsFor(conn))
	assert.Len(t, dir.Members(models.ChannelRoom("c1")), 1)
	assert.Empty(t, dir.Members(models.ChannelRoom("c2")))
}
