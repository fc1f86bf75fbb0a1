// Package testutil provides an in-memory ledger database and directory
// fixtures for service and handler tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/database"
	"github.com/promoledger/backend/internal/database/migrations"
	"github.com/promoledger/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated, isolated in-memory database. A single
// connection serialises access the way row locks do in postgres.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrations.RunMigrations(db))
	return db
}

// Clock is a settable time source
type Clock struct {
	T time.Time
}

// NewClock starts a clock at a fixed UTC instant
func NewClock() *Clock {
	return &Clock{T: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time { return c.T }

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// Fixture is one brand with one product and one influencer
type Fixture struct {
	Brand      models.Brand
	Product    models.Product
	Influencer models.Influencer
}

// Seed inserts a brand (10% default), a product without its own rate and an
// active influencer.
func Seed(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()

	brand := models.Brand{
		Name:                  "Acme",
		DefaultCommissionRate: decimal.RequireFromString("0.10"),
		WebhookSecret:         "brand-secret",
	}
	require.NoError(t, db.Create(&brand).Error)

	product := models.Product{
		BrandID:    brand.ID,
		Name:       "Trail Running Shoe",
		ProductURL: "https://shop.acme.test/p/trail-shoe",
	}
	require.NoError(t, db.Create(&product).Error)

	return Fixture{
		Brand:      brand,
		Product:    product,
		Influencer: CreateInfluencer(t, db),
	}
}

// CreateInfluencer inserts an active influencer
func CreateInfluencer(t *testing.T, db *gorm.DB) models.Influencer {
	t.Helper()

	inf := models.Influencer{
		UserID:      uuid.New(),
		DisplayName: "creator",
		Status:      models.InfluencerStatusActive,
	}
	require.NoError(t, db.Create(&inf).Error)
	return inf
}

// CreateProduct inserts a product for brandID with an optional own rate
func CreateProduct(t *testing.T, db *gorm.DB, brandID uuid.UUID, rate string) models.Product {
	t.Helper()

	p := models.Product{
		BrandID:    brandID,
		Name:       "Product " + uuid.NewString()[:8],
		ProductURL: "https://shop.acme.test/p/" + uuid.NewString()[:8],
	}
	if rate != "" {
		r := decimal.RequireFromString(rate)
		p.CommissionRate = &r
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// CreateLink inserts a tracking link directly
func CreateLink(t *testing.T, db *gorm.DB, influencerID, productID uuid.UUID) models.TrackingLink {
	t.Helper()

	link := models.TrackingLink{
		InfluencerID: influencerID,
		ProductID:    productID,
		Code:         uuid.NewString(),
		TotalSales:   decimal.Zero,
	}
	require.NoError(t, db.Create(&link).Error)
	return link
}

// CreateClick inserts a click on link at the given time
func CreateClick(t *testing.T, db *gorm.DB, linkID uuid.UUID, at time.Time) models.Click {
	t.Helper()

	click := models.Click{
		TrackingLinkID: linkID,
		ClickedAt:      at.UTC(),
		DeviceType:     models.DeviceDesktop,
	}
	require.NoError(t, db.Create(&click).Error)
	return click
}

// CreateConversion inserts a conversion with the given commission and status
func CreateConversion(t *testing.T, db *gorm.DB, link models.TrackingLink, brandID uuid.UUID, commission string, status models.ConversionStatus, convertedAt time.Time) models.Conversion {
	t.Helper()

	c := models.Conversion{
		TrackingLinkID:   link.ID,
		InfluencerID:     link.InfluencerID,
		BrandID:          brandID,
		ProductID:        link.ProductID,
		OrderID:          "order-" + uuid.NewString(),
		Amount:           decimal.RequireFromString(commission).Mul(decimal.NewFromInt(10)),
		Currency:         "USD",
		CommissionRate:   decimal.RequireFromString("0.10"),
		CommissionAmount: decimal.RequireFromString(commission),
		ClickedAt:        convertedAt.Add(-time.Hour).UTC(),
		ConvertedAt:      convertedAt.UTC(),
		Status:           status,
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}
