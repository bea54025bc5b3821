package chat

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/rlaneuville/roomchat/types"
)

// HistoryStore manages the paginated, append-only message history of rooms.
// Messages are collected in the room's pending buffer and flushed as an
// immutable page once the buffer reaches maxPerFile entries. Flushed pages
// are cached in an LRU so that "load more" pagination does not hit the
// backend for hot pages.
//
// All methods taking a *types.Room expect the caller to hold the room lock.
type HistoryStore struct {
	store      persistence.Store
	maxPerFile int
	pageCache  *lru.Cache
}

func NewHistoryStore(store persistence.Store, maxPerFile, cacheSize int) (*HistoryStore, error) {
	if maxPerFile < 1 {
		return nil, fmt.Errorf("max messages per file must be at least 1, got %d", maxPerFile)
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{store: store, maxPerFile: maxPerFile, pageCache: cache}, nil
}

func cacheKey(roomName string, part int) string {
	return fmt.Sprintf("%s:%d", roomName, part)
}

// Append adds a message to the room's pending buffer, stamping it with the
// room's current part. When the buffer reaches the page size it is flushed.
func (h *HistoryStore) Append(room *types.Room, message types.Message) error {
	message.Part = room.HistoryPart
	room.Pending = append(room.Pending, message)
	if len(room.Pending) >= h.maxPerFile {
		return h.FlushPending(room)
	}
	return nil
}

// FlushPending writes the room's pending buffer as one immutable page at the
// current part, advances the persisted part marker and clears the buffer. A
// room with an empty buffer is left untouched, so eviction and shutdown can
// call this unconditionally.
//
// A page may already exist at the current part when an earlier flush wrote it
// but failed to advance the marker, or when the room was hydrated from a stale
// marker after a crash. An existing page holding the head of the pending
// buffer counts as flushed and those messages are dropped from the buffer; any
// other existing page is stepped over. Either way the marker is repaired and
// the flush continues at the next part instead of wedging on the write-once
// guard.
func (h *HistoryStore) FlushPending(room *types.Room) error {
	for len(room.Pending) > 0 {
		part := room.HistoryPart
		page := make([]types.Message, len(room.Pending))
		copy(page, room.Pending)
		for i := range page {
			page[i].Part = part
		}
		if err := h.store.AppendPage(room.Name, part, page); err != nil {
			existing, loadErr := h.store.LoadPage(room.Name, part)
			if loadErr != nil || len(existing) == 0 {
				return PersistenceError("could not store history page %d of room %q: %s", part, room.Name, err)
			}
			if !isFlushedPrefix(existing, room.Pending) {
				room.HistoryPart = part + 1
				continue
			}
			page = existing
		}
		if err := h.store.SetCurrentPart(room.Name, part+1); err != nil {
			return PersistenceError("could not advance history part of room %q: %s", room.Name, err)
		}
		h.pageCache.Add(cacheKey(room.Name, part), page)
		if len(page) < len(room.Pending) {
			room.Pending = append(room.Pending[:0], room.Pending[len(page):]...)
		} else {
			room.Pending = room.Pending[:0]
		}
		room.HistoryPart = part + 1
	}
	return nil
}

// isFlushedPrefix reports whether the existing page is an earlier flush of
// the head of the pending buffer, as opposed to a page from an older run.
func isFlushedPrefix(existing, pending []types.Message) bool {
	if len(existing) > len(pending) {
		return false
	}
	for i, m := range existing {
		p := pending[i]
		if m.Text != p.Text || m.From != p.From || m.To != p.To || !m.Time.Equal(p.Time) {
			return false
		}
	}
	return true
}

// LoadPage returns the messages of a previously flushed page. A page that was
// never written yields an empty slice, which callers use as the end marker of
// backward pagination.
func (h *HistoryStore) LoadPage(roomName string, part int) ([]types.Message, error) {
	if cached, ok := h.pageCache.Get(cacheKey(roomName, part)); ok {
		return cached.([]types.Message), nil
	}
	messages, err := h.store.LoadPage(roomName, part)
	if err != nil {
		return nil, PersistenceError("could not load history page %d of room %q: %s", part, roomName, err)
	}
	if len(messages) > 0 {
		h.pageCache.Add(cacheKey(roomName, part), messages)
	}
	return messages, nil
}

// CurrentPart returns the authoritative next-write part index of a room, as
// recovered from the persisted marker.
func (h *HistoryStore) CurrentPart(roomName string) (int, error) {
	part, err := h.store.CurrentPart(roomName)
	if err != nil {
		return 0, PersistenceError("could not read history part of room %q: %s", roomName, err)
	}
	return part, nil
}
