// Package store persists chat history to a local SQLite database:
// gorm.io/gorm on top of glebarez/sqlite, a pure-Go driver that needs no
// cgo toolchain.
package store

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ChatEntry is one line of chat history, sent or received.
type ChatEntry struct {
	ID        uint `gorm:"primaryKey"`
	PeerID    string `gorm:"index"`
	Direction string // "in" or "out"
	Content   string
	Timestamp int64
}

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// ChatStore is the concrete gorm-backed ChatRepository.
type ChatStore struct {
	db *gorm.DB
}

// NewChatStore opens (creating if necessary) a SQLite database at path and
// migrates the chat_entries table.
func NewChatStore(path string) (*ChatStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ChatEntry{}); err != nil {
		return nil, err
	}
	return &ChatStore{db: db}, nil
}

func (s *ChatStore) Append(entry ChatEntry) error {
	return s.db.Create(&entry).Error
}

func (s *ChatStore) History(peerID string) ([]ChatEntry, error) {
	var entries []ChatEntry
	err := s.db.Where("peer_id = ?", peerID).Order("timestamp asc").Find(&entries).Error
	return entries, err
}

var _ ChatRepository = (*ChatStore)(nil)
