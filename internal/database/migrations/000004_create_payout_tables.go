package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/promoledger/backend/internal/models"
	"gorm.io/gorm"
)

func createPayoutTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_payout_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Payout{}, &models.PayoutHistory{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("payout_histories", "payouts")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createPayoutTablesMigration())
}
