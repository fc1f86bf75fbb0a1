package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/promoledger/backend/internal/models"
	"gorm.io/gorm"
)

func createTrackingTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_tracking_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.TrackingLink{}, &models.Click{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("clicks", "tracking_links")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createTrackingTablesMigration())
}
