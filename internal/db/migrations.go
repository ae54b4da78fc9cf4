package db

import (
	"fmt"

	"gorm.io/gorm"

	"vehicle-anpr/internal/repository"
)

var migrationStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_rto_code ON rto(code);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_created_at ON detections(created_at);`,
}

// Migrate creates the tables and then runs the index statements in order.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(repository.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
