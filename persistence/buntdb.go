package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/types"
	"github.com/tidwall/buntdb"
)

const roomNamesKey = "names"

// BuntStore keeps the whole persisted layout in a single buntdb file:
//
//	names                  JSON array of all known room names
//	snapshot:<room>        JSON room snapshot
//	page:<room>:<part>     JSON array of messages (write-once)
//	part:<room>            next-write part index
type BuntStore struct {
	db *buntdb.DB
}

func NewBuntStore(cfg *config.Config) (Store, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		fileName = ":memory:"
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func snapshotKey(name string) string { return "snapshot:" + name }
func partKey(name string) string     { return "part:" + name }
func pageKey(name string, part int) string {
	return "page:" + name + ":" + strconv.Itoa(part)
}

func (s *BuntStore) RoomNames() ([]string, error) {
	names := make([]string, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(roomNamesKey)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &names)
	})
	return names, err
}

func (s *BuntStore) AddRoomName(name string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		names := make([]string, 0)
		val, err := tx.Get(roomNamesKey)
		if err != nil && err != buntdb.ErrNotFound {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(val), &names); err != nil {
				return err
			}
		}
		for _, n := range names {
			if n == name {
				return nil
			}
		}
		names = append(names, name)
		data, err := json.Marshal(names)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(roomNamesKey, string(data), nil)
		return err
	})
}

func (s *BuntStore) LoadSnapshot(name string) (*types.RoomSnapshot, error) {
	snap := &types.RoomSnapshot{}
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(snapshotKey(name))
		if err == buntdb.ErrNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *BuntStore) SaveSnapshot(snap *types.RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(snapshotKey(snap.Name), string(data), nil)
		return err
	})
}

func (s *BuntStore) AppendPage(roomName string, part int, messages []types.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	key := pageKey(roomName, part)
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Get(key)
		if err == nil {
			return fmt.Errorf("history page %s already exists", key)
		}
		if err != buntdb.ErrNotFound {
			return err
		}
		_, _, err = tx.Set(key, string(data), nil)
		return err
	})
}

func (s *BuntStore) LoadPage(roomName string, part int) ([]types.Message, error) {
	messages := make([]types.Message, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(pageKey(roomName, part))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &messages)
	})
	return messages, err
}

func (s *BuntStore) CurrentPart(roomName string) (int, error) {
	part := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(partKey(roomName))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		part, err = strconv.Atoi(val)
		return err
	})
	return part, err
}

func (s *BuntStore) SetCurrentPart(roomName string, part int) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(partKey(roomName), strconv.Itoa(part), nil)
		return err
	})
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}
