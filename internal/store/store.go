package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a GORM connection against the Supabase/Postgres URL and
// auto-migrates the tables the core owns.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("store: dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := db.AutoMigrate(
		&JobRow{},
		&ProgressRow{},
		&RolloutConfigurationRow{},
		&RolloutHistoryRow{},
		&RepositoryRow{},
		&PullRequestRow{},
		&ReviewRow{},
		&CommentRow{},
		&FileChangeRow{},
	); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}

	return db, nil
}

// IsConflict reports whether err is a unique-key violation, which callers
// treat as a successful idempotent upsert rather than a failure.
func IsConflict(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Ping verifies the underlying connection is reachable, for health checks.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return sqlDB.Ping()
}
