package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct{ id string }

func (c *stubConn) SessionId() string { return c.id }

func TestRoomCapacityAndPseudonyms(t *testing.T) {
	room := &Room{
		Name:     "attic",
		Type:     RoomTypePublic,
		MaxUsers: 2,
		Members:  map[string]Member{},
	}
	assert.False(t, room.IsPrivate())
	assert.False(t, room.IsFull())

	room.Members["s1"] = Member{Pseudonym: "alice", Conn: &stubConn{id: "s1"}}
	room.Members["s2"] = Member{Pseudonym: "bob", Conn: &stubConn{id: "s2"}}
	assert.True(t, room.IsFull())
	assert.True(t, room.PseudonymInUse("alice"))
	assert.False(t, room.PseudonymInUse("Alice"))

	member, ok := room.MemberByPseudonym("bob")
	require.True(t, ok)
	assert.Equal(t, "s2", member.Conn.SessionId())
	_, ok = room.MemberByPseudonym("carol")
	assert.False(t, ok)
}

func TestRoomSnapshotRoundtrip(t *testing.T) {
	room := &Room{
		Name:         "attic",
		Type:         RoomTypePrivate,
		Password:     "s3cret",
		Creator:      "admin",
		CreationDate: time.Date(2021, 4, 1, 12, 0, 0, 0, time.UTC),
		MaxUsers:     5,
		HistoryPart:  3,
		Pending:      []Message{{Text: "unflushed"}},
		Members: map[string]Member{
			"s1": {Pseudonym: "alice", Conn: &stubConn{id: "s1"}},
		},
	}

	restored := room.Snapshot().Restore()
	assert.Equal(t, room.Name, restored.Name)
	assert.Equal(t, room.Type, restored.Type)
	assert.Equal(t, room.Password, restored.Password)
	assert.Equal(t, room.Creator, restored.Creator)
	assert.Equal(t, room.MaxUsers, restored.MaxUsers)
	assert.Equal(t, room.HistoryPart, restored.HistoryPart)

	// live state never travels through a snapshot
	assert.Empty(t, restored.Members)
	assert.Empty(t, restored.Pending)
	assert.False(t, restored.Closed())
}
