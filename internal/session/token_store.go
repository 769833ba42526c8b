package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a row of the console's durable key-value table.
type Entry struct {
	Name      string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the default table name.
func (Entry) TableName() string {
	return "console_kv"
}

// TokenStore persists the bearer token under a fixed key.
type TokenStore struct {
	db  *gorm.DB
	key string
}

// NewTokenStore creates a TokenStore. The Entry table must already exist.
func NewTokenStore(db *gorm.DB, key string) *TokenStore {
	return &TokenStore{db: db, key: key}
}

// Load returns the persisted token, or "" when none is stored.
func (s *TokenStore) Load(ctx context.Context) (string, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("name = ?", s.key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return e.Value, nil
}

// Save stores token, replacing any previous value.
func (s *TokenStore) Save(ctx context.Context, token string) error {
	e := Entry{Name: s.key, Value: token}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Clear removes the persisted token.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("name = ?", s.key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
