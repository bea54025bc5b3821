package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/types"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the SQL-backed Store, usable with sqlite or postgres. The
// snapshot and the page payloads are kept as JSON columns so the schema does
// not have to follow every snapshot field.
type GormStore struct {
	db *gorm.DB
}

type roomNameRecord struct {
	Name string `gorm:"primaryKey"`
}

type snapshotRecord struct {
	Name string `gorm:"primaryKey"`
	Data datatypes.JSON
}

type pageRecord struct {
	RoomName string `gorm:"primaryKey"`
	Part     int    `gorm:"primaryKey;autoIncrement:false"`
	Messages datatypes.JSON
}

type markerRecord struct {
	RoomName string `gorm:"primaryKey"`
	Part     int
}

func NewGormStore(cfg *config.Config) (Store, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("sql persistence requires a dsn")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid sql persistence type %q", cfg.PersistenceConfig.Type)
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&roomNameRecord{}, &snapshotRecord{}, &pageRecord{}, &markerRecord{})
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) RoomNames() ([]string, error) {
	records := make([]roomNameRecord, 0)
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *GormStore) AddRoomName(name string) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&roomNameRecord{Name: name}).Error
}

func (s *GormStore) LoadSnapshot(name string) (*types.RoomSnapshot, error) {
	record := snapshotRecord{Name: name}
	err := s.db.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap := &types.RoomSnapshot{}
	if err := json.Unmarshal([]byte(record.Data), snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *GormStore) SaveSnapshot(snap *types.RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	record := snapshotRecord{Name: snap.Name, Data: datatypes.JSON(data)}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

func (s *GormStore) AppendPage(roomName string, part int, messages []types.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	// plain Create: a primary key conflict keeps flushed pages write-once
	record := pageRecord{RoomName: roomName, Part: part, Messages: datatypes.JSON(data)}
	return s.db.Create(&record).Error
}

func (s *GormStore) LoadPage(roomName string, part int) ([]types.Message, error) {
	messages := make([]types.Message, 0)
	record := pageRecord{}
	// an explicit condition: a struct condition would drop Part when it is 0
	err := s.db.Where("room_name = ? AND part = ?", roomName, part).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return messages, nil
	}
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal([]byte(record.Messages), &messages)
	return messages, err
}

func (s *GormStore) CurrentPart(roomName string) (int, error) {
	record := markerRecord{RoomName: roomName}
	err := s.db.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return record.Part, nil
}

func (s *GormStore) SetCurrentPart(roomName string, part int) error {
	record := markerRecord{RoomName: roomName, Part: part}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

func (s *GormStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
