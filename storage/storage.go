package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("key not found")

// Storage is a durable key/blob store backed by SQLite
type Storage struct {
	db *gorm.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		slog.Error("storage: Failed to connect to database", "error", err, "path", dbPath)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) migrate() error {
	err := s.db.AutoMigrate(&Entry{})
	if err != nil {
		slog.Error("storage: Failed to migrate database", "error", err)
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Get retrieves the blob stored under key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	result := s.db.WithContext(ctx).Where("entry_key = ?", key).Limit(1).Find(&entry)
	if result.Error != nil {
		slog.Error("storage: Failed to get entry", "error", result.Error, "key", key)
		return nil, fmt.Errorf("failed to get entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return entry.Value, nil
}

// Put stores the blob under key, replacing any previous value
func (s *Storage) Put(ctx context.Context, key string, value []byte) error {
	entry := Entry{Key: key, Value: value}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)
	if result.Error != nil {
		slog.Error("storage: Failed to put entry", "error", result.Error, "key", key, "size", len(value))
		return fmt.Errorf("failed to put entry: %w", result.Error)
	}

	slog.Debug("storage: Entry stored", "key", key, "size", len(value))
	return nil
}

// Delete removes the entry stored under key. Deleting a missing key is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{})
	if result.Error != nil {
		slog.Error("storage: Failed to delete entry", "error", result.Error, "key", key)
		return fmt.Errorf("failed to delete entry: %w", result.Error)
	}
	return nil
}

// Keys lists all stored keys
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	result := s.db.WithContext(ctx).Model(&Entry{}).Order("entry_key").Pluck("entry_key", &keys)
	if result.Error != nil {
		slog.Error("storage: Failed to list keys", "error", result.Error)
		return nil, fmt.Errorf("failed to list keys: %w", result.Error)
	}
	return keys, nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
