package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tagvorto/internal/models"
	"tagvorto/internal/util"
)

// OpTimeout bounds every store operation issued by the services. No store
// call may block a request or a background loop indefinitely.
const OpTimeout = 5 * time.Second

// Open connects to Postgres when a DSN is configured, otherwise falls back
// to a local SQLite file. TranslateError is required: the services rely on
// gorm.ErrDuplicatedKey to detect unique-constraint conflicts.
func Open(postgresDSN, sqlitePath string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(),
	}

	if postgresDSN != "" {
		util.LogInfo("Connecting to postgres database")
		db, err := gorm.Open(postgres.Open(postgresDSN), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	}

	util.LogInfo("No DATABASE_DSN set, using sqlite database at %s", sqlitePath)
	db, err := gorm.Open(sqlite.Open(sqlitePath), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the schema for every entity the core owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.DailyGame{},
		&models.PlayerGame{},
		&models.Guess{},
		&models.LeaderboardEntry{},
		&models.Applause{},
		&models.Follow{},
	)
}

// WithTimeout derives a bounded context for a single store operation.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, OpTimeout)
}
