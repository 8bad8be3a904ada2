package listcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no list has been cached for a provider yet.
var ErrNotFound = errors.New("no cached list for provider")

// CachedList holds the last synchronized anime list for one provider, stored
// as the JSON payload the sync produced.
type CachedList struct {
	ID         uint      `gorm:"primarykey"`
	ProviderID string    `gorm:"uniqueIndex;size:64"`
	Payload    string    `gorm:"type:text"`
	SyncedAt   time.Time `gorm:"not null"`
}

// Entry is the read-side shape handed to the API.
type Entry struct {
	ProviderID string          `json:"providerId"`
	Payload    json.RawMessage `json:"payload"`
	SyncedAt   time.Time       `json:"syncedAt"`
}

// Cache persists synchronized lists in an embedded SQLite database so the UI
// can render the last known list without hitting the provider.
type Cache struct {
	db *gorm.DB
}

// Open opens (or creates) the cache database at path and migrates its schema.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open list cache: %w", err)
	}
	if err := db.AutoMigrate(&CachedList{}); err != nil {
		return nil, fmt.Errorf("migrate list cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Save marshals payload and upserts it as the provider's cached list.
func (c *Cache) Save(providerID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cached list: %w", err)
	}

	record := CachedList{
		ProviderID: providerID,
		Payload:    string(data),
		SyncedAt:   time.Now().UTC(),
	}
	result := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "synced_at"}),
	}).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("save cached list: %w", result.Error)
	}
	return nil
}

// Get returns the provider's cached list, or ErrNotFound when nothing has
// been synchronized yet.
func (c *Cache) Get(providerID string) (*Entry, error) {
	var record CachedList
	result := c.db.Where("provider_id = ?", providerID).First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("read cached list: %w", result.Error)
	}

	return &Entry{
		ProviderID: record.ProviderID,
		Payload:    json.RawMessage(record.Payload),
		SyncedAt:   record.SyncedAt,
	}, nil
}

// Providers lists the provider IDs with a cached list, newest first.
func (c *Cache) Providers() ([]string, error) {
	var ids []string
	result := c.db.Model(&CachedList{}).
		Order("synced_at DESC").
		Pluck("provider_id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("list cached providers: %w", result.Error)
	}
	return ids, nil
}
