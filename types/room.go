package types

import (
	"sync"
	"time"
)

const (
	RoomTypePublic  = "public"
	RoomTypePrivate = "private"

	// DefaultRoomName is the room that always exists and that connects
	// without a room name end up in.
	DefaultRoomName = "default"
)

// Connection is the transport-side handle of a connected client. The session
// id is stable for the lifetime of the connection and is used as the
// membership key.
type Connection interface {
	SessionId() string
}

// Member is one occupant of a room. Identity is the account id of an
// authenticated user and empty for guests.
type Member struct {
	Pseudonym string
	Identity  string
	Conn      Connection
}

// Room is the in-memory aggregate of an active room. Members and Pending are
// live state and are never persisted as-is; the durable part of a room is its
// RoomSnapshot. The embedded mutex is the unit of mutual exclusion: all
// member/history mutations happen under it, and no operation ever needs two
// room locks at once.
type Room struct {
	Name         string
	Type         string
	Password     string
	Creator      string
	CreationDate time.Time
	MaxUsers     int

	// HistoryPart is the next history page index to write.
	HistoryPart int
	// Pending holds messages not yet flushed to a page.
	Pending []Message

	// Members maps session ids to members.
	Members map[string]Member

	// closed is set when the room is evicted, so a caller that obtained the
	// pointer before eviction does not mutate a stale aggregate.
	closed bool

	sync.Mutex
}

func (r *Room) IsPrivate() bool {
	return r.Type == RoomTypePrivate
}

func (r *Room) IsFull() bool {
	return len(r.Members) >= r.MaxUsers
}

// PseudonymInUse reports whether any current member uses the given pseudonym
// (case-sensitive exact match).
func (r *Room) PseudonymInUse(pseudonym string) bool {
	for _, m := range r.Members {
		if m.Pseudonym == pseudonym {
			return true
		}
	}
	return false
}

// MemberByPseudonym resolves the first member with the given pseudonym.
func (r *Room) MemberByPseudonym(pseudonym string) (Member, bool) {
	for _, m := range r.Members {
		if m.Pseudonym == pseudonym {
			return m, true
		}
	}
	return Member{}, false
}

// Close marks the room evicted. Callers must hold the room lock.
func (r *Room) Close() {
	r.closed = true
}

// Closed reports whether the room was evicted. Callers must hold the room lock.
func (r *Room) Closed() bool {
	return r.closed
}

// Snapshot returns the durable metadata of the room. The member map and the
// pending buffer are deliberately excluded.
func (r *Room) Snapshot() *RoomSnapshot {
	return &RoomSnapshot{
		Name:         r.Name,
		Type:         r.Type,
		Password:     r.Password,
		Creator:      r.Creator,
		CreationDate: r.CreationDate,
		MaxUsers:     r.MaxUsers,
		HistoryPart:  r.HistoryPart,
	}
}

// RoomSnapshot is the persisted form of a room: metadata only, reloaded with
// an empty member map.
type RoomSnapshot struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Password     string    `json:"password"`
	Creator      string    `json:"creator"`
	CreationDate time.Time `json:"creation_date"`
	MaxUsers     int       `json:"max_users"`
	HistoryPart  int       `json:"history_part"`
}

// Restore builds an active Room from a snapshot.
func (s *RoomSnapshot) Restore() *Room {
	return &Room{
		Name:         s.Name,
		Type:         s.Type,
		Password:     s.Password,
		Creator:      s.Creator,
		CreationDate: s.CreationDate,
		MaxUsers:     s.MaxUsers,
		HistoryPart:  s.HistoryPart,
		Members:      make(map[string]Member),
	}
}
