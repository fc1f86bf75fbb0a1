package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/promoledger/backend/internal/models"
	"gorm.io/gorm"
)

// Directory tables are written by the catalog, identity and campaign
// services; the ledger keeps a read copy in the same database.
func createDirectoryTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_directory_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Brand{},
				&models.Product{},
				&models.Influencer{},
				&models.Campaign{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("campaigns", "influencers", "products", "brands")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createDirectoryTablesMigration())
}
