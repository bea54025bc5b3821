package persistence

import (
	"errors"
	"fmt"

	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/types"
)

// ErrNotFound is returned when a requested record does not exist. A missing
// history page is not an error (LoadPage returns an empty slice instead), a
// missing snapshot is.
var ErrNotFound = errors.New("record not found")

// Store is the persistence backend of the chat service. It holds one
// snapshot per room, one immutable record per flushed history page keyed by
// (room, part), one part marker per room and the global set of known room
// names. AppendPage is write-once: storing a page at an existing (room, part)
// key fails.
type Store interface {
	RoomNames() ([]string, error)
	AddRoomName(name string) error
	LoadSnapshot(name string) (*types.RoomSnapshot, error)
	SaveSnapshot(snap *types.RoomSnapshot) error
	AppendPage(roomName string, part int, messages []types.Message) error
	LoadPage(roomName string, part int) ([]types.Message, error)
	CurrentPart(roomName string) (int, error)
	SetCurrentPart(roomName string, part int) error
	Close() error
}

// NewStore creates the Store selected by the persistence configuration.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.PersistenceConfig.Type {
	case "", "buntdb":
		return NewBuntStore(cfg)

	case "file":
		return NewFileStore(cfg)

	case "sqlite", "postgres":
		return NewGormStore(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
