package persistence

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/types"
)

// FileStore persists the chat state as plain files below a data directory:
//
//	<dir>/rooms_name                          JSON array of known room names
//	<dir>/<room>/room.json                    room snapshot
//	<dir>/<room>/historic-part-<part>.json    one flushed history page
//	<dir>/<room>/historic-last-part           next-write part index
//
// A file lock guards the directory against concurrent writers from other
// processes (the admin CLI in particular).
type FileStore struct {
	dir  string
	lock *flock.Flock
}

func NewFileStore(cfg *config.Config) (Store, error) {
	dir := cfg.PersistenceConfig.DSN
	if dir == "" {
		return nil, fmt.Errorf("file persistence requires a data directory as dsn")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".roomchat.lock")),
	}, nil
}

func (s *FileStore) roomDir(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) namesPath() string {
	return filepath.Join(s.dir, "rooms_name")
}

func (s *FileStore) pagePath(roomName string, part int) string {
	return filepath.Join(s.roomDir(roomName), "historic-part-"+strconv.Itoa(part)+".json")
}

func (s *FileStore) writeLocked(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *FileStore) RoomNames() ([]string, error) {
	names := make([]string, 0)
	data, err := ioutil.ReadFile(s.namesPath())
	if os.IsNotExist(err) {
		return names, nil
	}
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(data, &names)
	return names, err
}

func (s *FileStore) AddRoomName(name string) error {
	return s.writeLocked(func() error {
		names, err := s.RoomNames()
		if err != nil {
			return err
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
		if err := os.MkdirAll(s.roomDir(name), 0o755); err != nil {
			return err
		}
		return ioutil.WriteFile(s.namesPath(), data, 0o644)
	})
}

func (s *FileStore) LoadSnapshot(name string) (*types.RoomSnapshot, error) {
	data, err := ioutil.ReadFile(filepath.Join(s.roomDir(name), "room.json"))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap := &types.RoomSnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *FileStore) SaveSnapshot(snap *types.RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.writeLocked(func() error {
		if err := os.MkdirAll(s.roomDir(snap.Name), 0o755); err != nil {
			return err
		}
		return ioutil.WriteFile(filepath.Join(s.roomDir(snap.Name), "room.json"), data, 0o644)
	})
}

func (s *FileStore) AppendPage(roomName string, part int, messages []types.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return s.writeLocked(func() error {
		path := s.pagePath(roomName, part)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("history page %s already exists", path)
		} else if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(s.roomDir(roomName), 0o755); err != nil {
			return err
		}
		return ioutil.WriteFile(path, data, 0o644)
	})
}

func (s *FileStore) LoadPage(roomName string, part int) ([]types.Message, error) {
	messages := make([]types.Message, 0)
	data, err := ioutil.ReadFile(s.pagePath(roomName, part))
	if os.IsNotExist(err) {
		return messages, nil
	}
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(data, &messages)
	return messages, err
}

func (s *FileStore) CurrentPart(roomName string) (int, error) {
	data, err := ioutil.ReadFile(filepath.Join(s.roomDir(roomName), "historic-last-part"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (s *FileStore) SetCurrentPart(roomName string, part int) error {
	return s.writeLocked(func() error {
		if err := os.MkdirAll(s.roomDir(roomName), 0o755); err != nil {
			return err
		}
		return ioutil.WriteFile(
			filepath.Join(s.roomDir(roomName), "historic-last-part"),
			[]byte(strconv.Itoa(part)), 0o644)
	})
}

func (s *FileStore) Close() error {
	return nil
}
