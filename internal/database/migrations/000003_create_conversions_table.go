package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/promoledger/backend/internal/models"
	"gorm.io/gorm"
)

func createConversionsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_conversions_table",
		Migrate: func(tx *gorm.DB) error {
			// idx_conversions_brand_order is the dedup guarantee for purchase notifications
			return tx.AutoMigrate(&models.Conversion{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("conversions")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createConversionsTableMigration())
}
