// Package database is the GORM-backed cache store for synced entities:
// reviews, media, local posts, locations, analytics snapshots and CRM
// contacts. Each entity is keyed by its natural composite key from the
// source system and written through merge-aware upserts that never
// clobber locally-entered fields.
package database

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrInvalidDBObject is returned when the database object is missing
	// required components.
	ErrInvalidDBObject = fmt.Errorf("invalid database object")

	// ErrInvalidGormConnectionObject is returned when the GORM engine is
	// nil or in an invalid state.
	ErrInvalidGormConnectionObject = fmt.Errorf("invalid gorm connection object")
)

// Db wraps the GORM engine together with the service logger.
type Db struct {
	Engine *gorm.DB
	Logger *zap.Logger
}

// New wires a Db around an existing GORM engine and migrates the entity
// schema.
func New(engine *gorm.DB, logger *zap.Logger) (*Db, error) {
	db := &Db{
		Engine: engine,
		Logger: logger,
	}

	if err := db.Validate(); err != nil {
		return nil, err
	}

	if err := db.performSchemaMigration(); err != nil {
		return nil, err
	}

	return db, nil
}

// OpenEngine connects a GORM engine to PostgreSQL.
func OpenEngine(dsn string) (*gorm.DB, error) {
	engine, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm engine: %w", err)
	}

	return engine, nil
}

// Validate checks that the Db carries everything its operations need.
func (db *Db) Validate() error {
	if db.Engine == nil {
		return multierr.Append(ErrInvalidDBObject, ErrInvalidGormConnectionObject)
	}

	if db.Logger == nil {
		return multierr.Append(ErrInvalidDBObject, fmt.Errorf("missing logger"))
	}

	return nil
}

func (db *Db) performSchemaMigration() error {
	err := db.Engine.AutoMigrate(
		&Review{},
		&Media{},
		&LocalPost{},
		&Location{},
		&AnalyticsSnapshot{},
		&Contact{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate entity schema: %w", err)
	}

	return nil
}
