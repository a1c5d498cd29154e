package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/models"
)

// Connect opens the application database. URLs of the form sqlite://path use
// the embedded driver; anything else is treated as a PostgreSQL DSN.
func Connect(url string) (*gorm.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url must not be empty")
	}

	var (
		db  *gorm.DB
		err error
	)
	if path, ok := strings.CutPrefix(url, "sqlite://"); ok {
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	} else {
		db, err = gorm.Open(postgres.Open(url), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the application tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Student{},
		&models.Challenge{},
		&models.Attempt{},
		&models.PipelineEvent{},
	)
}
