package rooms

import (
	"sync"

	"github.com/Awatech12/kishiface/internal/models"
	"github.com/Awatech12/kishiface/internal/registry"
)

// Directory is the in-memory index of which connections are subscribed
// to which rooms. It holds no message history; a room with zero live
// members simply has no fan-out targets.
type Directory struct {
	mu     sync.RWMutex
	rooms  map[models.Room]map[registry.ConnID]bool
	byConn map[registry.ConnID]map[models.Room]bool
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms:  make(map[models.Room]map[registry.ConnID]bool),
		byConn: make(map[registry.ConnID]map[models.Room]bool),
	}
}

// Join subscribes a connection to a room. Idempotent; the same user may
// join with several connections (multi-device) and each receives fan-out.
func (d *Directory) Join(room models.Room, connID registry.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms[room] == nil {
		d.rooms[room] = make(map[registry.ConnID]bool)
	}
	d.rooms[room][connID] = true
	if d.byConn[connID] == nil {
		d.byConn[connID] = make(map[models.Room]bool)
	}
	d.byConn[connID][room] = true
}

// Leave unsubscribes a connection from a room. Idempotent.
func (d *Directory) Leave(room models.Room, connID registry.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(room, connID)
}

func (d *Directory) leaveLocked(room models.Room, connID registry.ConnID) {
	if conns, ok := d.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(d.rooms, room)
		}
	}
	if joined, ok := d.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(d.byConn, connID)
		}
	}
}

// LeaveAll removes the connection from every room it joined. Called on
// connection close.
func (d *Directory) LeaveAll(connID registry.ConnID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for room := range d.byConn[connID] {
		d.leaveLocked(room, connID)
	}
}

// Members returns a snapshot of the connections subscribed to the room.
func (d *Directory) Members(room models.Room) []registry.ConnID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := make([]registry.ConnID, 0, len(d.rooms[room]))
	for id := range d.rooms[room] {
		members = append(members, id)
	}
	return members
}

// Contains reports whether the connection is subscribed to the room.
func (d *Directory) Contains(room models.Room, connID registry.ConnID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[room][connID]
}

// RoomsFor returns a snapshot of the rooms the connection joined.
func (d *Directory) RoomsFor(connID registry.ConnID) []models.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	joined := make([]models.Room, 0, len(d.byConn[connID]))
	for room := range d.byConn[connID] {
		joined = append(joined, room)
	}
	return joined
}
