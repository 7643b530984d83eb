package storage

import "time"

// Entry is a single key/blob pair of the local store
type Entry struct {
	Key       string `gorm:"primaryKey;column:entry_key"`
	Value     []byte
	UpdatedAt time.Time
}
