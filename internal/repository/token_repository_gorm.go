package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const tokenKey = "token"

// KVEntry is a row of the local key-value table. Only the "token" key is
// ever written.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

type GormTokenRepository struct{ db *gorm.DB }

func NewGormTokenRepository(db *gorm.DB) (*GormTokenRepository, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &GormTokenRepository{db: db}, nil
}

// OpenGormDB opens the persistence database for the sqlite or postgres driver.
func OpenGormDB(driver, pathOrDSN string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		if pathOrDSN == "" {
			return nil, errors.New("sqlite persistence requires a path")
		}
		dialector = sqlite.Open(pathOrDSN)
	case "postgres":
		if pathOrDSN == "" {
			return nil, errors.New("postgres persistence requires a dsn")
		}
		dialector = postgres.Open(pathOrDSN)
	default:
		return nil, fmt.Errorf("unsupported persistence driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func (r *GormTokenRepository) Load(ctx context.Context) (string, error) {
	var entry KVEntry
	err := r.db.WithContext(ctx).Where("key = ?", tokenKey).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (r *GormTokenRepository) Save(ctx context.Context, token string) error {
	entry := KVEntry{Key: tokenKey, Value: token, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (r *GormTokenRepository) Delete(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("key = ?", tokenKey).Delete(&KVEntry{}).Error
}
