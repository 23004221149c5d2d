package db

import (
	"fmt"

	"lifesync/internal/models"
)

// AutoMigrate creates the metadata tables. Warehouse tables are created per
// connector resource by the sync service.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	if err := db.Gorm.AutoMigrate(
		&models.SyncCursor{},
		&models.SyncLog{},
		&models.CredentialSet{},
		&models.SystemSetting{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
