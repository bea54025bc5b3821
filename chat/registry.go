package chat

import (
	"sync"
	"time"

	"github.com/rlaneuville/roomchat/globals"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/rlaneuville/roomchat/types"
)

// RoomRegistry owns the set of known room names and the in-memory state of
// currently active rooms. Rooms are hydrated lazily from their snapshot on
// first connect and evicted (snapshotted, never deleted) as soon as their
// member count returns to zero.
//
// Lock ordering: a room lock may be held while acquiring the registry mutex,
// never the other way around.
type RoomRegistry struct {
	mu      sync.RWMutex
	store   persistence.Store
	history *HistoryStore
	known   map[string]struct{}
	active  map[string]*types.Room
}

// NewRoomRegistry loads the persisted room-name set and makes sure the
// default room exists.
func NewRoomRegistry(store persistence.Store, history *HistoryStore, defaultMaxUsers int) (*RoomRegistry, error) {
	names, err := store.RoomNames()
	if err != nil {
		return nil, err
	}
	r := &RoomRegistry{
		store:   store,
		history: history,
		known:   make(map[string]struct{}, len(names)),
		active:  make(map[string]*types.Room),
	}
	for _, name := range names {
		r.known[name] = struct{}{}
	}
	if _, ok := r.known[types.DefaultRoomName]; !ok {
		_, err := r.Create(types.DefaultRoomName, types.RoomTypePublic, defaultMaxUsers, "", "")
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// IsKnown reports whether the name exists in the persisted global name set,
// irrespective of whether the room is currently loaded.
func (r *RoomRegistry) IsKnown(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[name]
	return ok
}

// Active returns the in-memory room if it is currently loaded.
func (r *RoomRegistry) Active(name string) (*types.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.active[name]
	return room, ok
}

// ActiveRooms returns all currently loaded rooms, for checkpoint and
// shutdown sweeps.
func (r *RoomRegistry) ActiveRooms() []*types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*types.Room, 0, len(r.active))
	for _, room := range r.active {
		rooms = append(rooms, room)
	}
	return rooms
}

// Create registers a new room name persistently, writes its initial snapshot
// and part marker and returns the newly active room. It fails with a
// ConflictError when the name is already known.
func (r *RoomRegistry) Create(name, roomType string, maxUsers int, password, creator string) (*types.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.known[name]; ok {
		return nil, ConflictError("the chat room name %q already exists", name)
	}
	room := &types.Room{
		Name:         name,
		Type:         roomType,
		Password:     password,
		Creator:      creator,
		CreationDate: time.Now().UTC(),
		MaxUsers:     maxUsers,
		Members:      make(map[string]types.Member),
	}
	if err := r.store.AddRoomName(name); err != nil {
		return nil, PersistenceError("could not register room name %q: %s", name, err)
	}
	if err := r.store.SaveSnapshot(room.Snapshot()); err != nil {
		return nil, PersistenceError("could not store snapshot of room %q: %s", name, err)
	}
	if err := r.store.SetCurrentPart(name, 0); err != nil {
		return nil, PersistenceError("could not store history part of room %q: %s", name, err)
	}
	r.known[name] = struct{}{}
	r.active[name] = room
	return room, nil
}

// GetOrLoad returns the active room, hydrating it from its snapshot when it
// is known but unloaded. Unknown names fail with a NotFoundError; a snapshot
// that cannot be read is logged and surfaced as NotFoundError as well.
func (r *RoomRegistry) GetOrLoad(name string) (*types.Room, error) {
	r.mu.RLock()
	if room, ok := r.active[name]; ok {
		r.mu.RUnlock()
		return room, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.active[name]; ok {
		return room, nil
	}
	if _, ok := r.known[name]; !ok {
		return nil, NotFoundError("the chat room %q does not exist", name)
	}
	snap, err := r.store.LoadSnapshot(name)
	if err != nil {
		globals.AppLogger.Error("could not load room snapshot", "room", name, "error", err)
		return nil, NotFoundError("the chat room %q does not exist", name)
	}
	room := snap.Restore()
	part, err := r.history.CurrentPart(name)
	if err != nil {
		globals.AppLogger.Error("could not recover history part", "room", name, "error", err)
		return nil, NotFoundError("the chat room %q does not exist", name)
	}
	// the marker is authoritative over the snapshot copy
	room.HistoryPart = part
	r.active[name] = room
	globals.AppLogger.Debug("hydrated room", "room", name, "part", part)
	return room, nil
}

// EvictIfEmpty flushes the room's pending messages, snapshots its metadata
// and removes it from the active set, provided it has no members left. The
// caller must hold the room lock.
func (r *RoomRegistry) EvictIfEmpty(room *types.Room) error {
	if len(room.Members) > 0 {
		return nil
	}
	if err := r.history.FlushPending(room); err != nil {
		return err
	}
	if err := r.store.SaveSnapshot(room.Snapshot()); err != nil {
		return PersistenceError("could not store snapshot of room %q: %s", room.Name, err)
	}
	room.Close()
	r.mu.Lock()
	delete(r.active, room.Name)
	r.mu.Unlock()
	globals.AppLogger.Debug("evicted room", "room", room.Name)
	return nil
}
