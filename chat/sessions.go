package chat

import "sync"

// SessionDirectory tracks which rooms each connection currently belongs to.
// It replaces ad hoc per-connection maps with one explicitly owned structure
// constructed at service start.
type SessionDirectory struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{} // session id -> set of room names
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{rooms: make(map[string]map[string]struct{})}
}

// Track records that the session belongs to the room. Idempotent.
func (d *SessionDirectory) Track(sessionId, roomName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.rooms[sessionId]
	if !ok {
		set = make(map[string]struct{})
		d.rooms[sessionId] = set
	}
	set[roomName] = struct{}{}
}

// RoomsOf returns the rooms the session currently belongs to.
func (d *SessionDirectory) RoomsOf(sessionId string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.rooms[sessionId]))
	for name := range d.rooms[sessionId] {
		names = append(names, name)
	}
	return names
}

// Forget atomically clears all membership records of the session and returns
// the set that was cleared. A second call for the same session returns an
// empty set, which makes disconnect processing idempotent.
func (d *SessionDirectory) Forget(sessionId string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.rooms[sessionId]
	delete(d.rooms, sessionId)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names
}
