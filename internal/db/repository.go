package db

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ErrTokenInvalid is returned when a premium token is unknown or already used.
var ErrTokenInvalid = errors.New("token invalid or already used")

type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// WAL keeps the long-poll loop and the scheduler from blocking each other.
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&User{},
		&Admin{},
		&Setting{},
		&ForceChannel{},
		&ForceJoinRequest{},
		&File{},
		&Batch{},
		&BatchItem{},
		&StoredMessage{},
		&ChannelBatch{},
		&Link{},
		&Token{},
		&PaymentRequest{},
	)
}

// Ping verifies the underlying connection, used by the readiness probe.
func (r *Repository) Ping() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
