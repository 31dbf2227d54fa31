package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RoomKind discriminates the three conversation scopes.
type RoomKind string

const (
	RoomDirect  RoomKind = "dm"
	RoomChannel RoomKind = "channel"
	RoomTopic   RoomKind = "topic"
)

var ErrInvalidRoom = errors.New("invalid room identifier")

// Room identifies a conversation scope. Direct rooms hold the two user ids
// in sorted order so both parties always resolve to the same room; channel
// and topic rooms carry their identifier in Name.
type Room struct {
	Kind  RoomKind
	UserA int
	UserB int
	Name  string
}

// PresenceTopic is the broadcast room presence changes are fanned out to.
var PresenceTopic = TopicRoom("presence")

// DirectRoom returns the canonical direct room for two users.
func DirectRoom(a, b int) Room {
	if b < a {
		a, b = b, a
	}
	return Room{Kind: RoomDirect, UserA: a, UserB: b}
}

// ChannelRoom returns the room for a channel id.
func ChannelRoom(id string) Room {
	return Room{Kind: RoomChannel, Name: id}
}

// TopicRoom returns the room for a broadcast topic.
func TopicRoom(name string) Room {
	return Room{Kind: RoomTopic, Name: name}
}

// ParseRoom parses the wire form "dm:<a>:<b>", "channel:<id>" or
// "topic:<name>". Direct rooms are re-canonicalized regardless of the
// order the client sent the two ids in.
func ParseRoom(s string) (Room, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Room{}, ErrInvalidRoom
	}
	switch RoomKind(parts[0]) {
	case RoomDirect:
		ids := strings.Split(parts[1], ":")
		if len(ids) != 2 {
			return Room{}, ErrInvalidRoom
		}
		a, errA := strconv.Atoi(ids[0])
		b, errB := strconv.Atoi(ids[1])
		if errA != nil || errB != nil || a <= 0 || b <= 0 || a == b {
			return Room{}, ErrInvalidRoom
		}
		return DirectRoom(a, b), nil
	case RoomChannel:
		return ChannelRoom(parts[1]), nil
	case RoomTopic:
		return TopicRoom(parts[1]), nil
	}
	return Room{}, ErrInvalidRoom
}

// String returns the canonical wire form of the room.
func (r Room) String() string {
	switch r.Kind {
	case RoomDirect:
		return fmt.Sprintf("dm:%d:%d", r.UserA, r.UserB)
	case RoomChannel:
		return "channel:" + r.Name
	case RoomTopic:
		return "topic:" + r.Name
	}
	return ""
}

// HasUser reports whether the user is a party of a direct room. Topic
// rooms are open to everyone; channel membership lives in the store.
func (r Room) HasUser(userID int) bool {
	switch r.Kind {
	case RoomDirect:
		return r.UserA == userID || r.UserB == userID
	case RoomTopic:
		return true
	}
	return false
}
