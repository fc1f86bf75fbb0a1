// Package attribution turns purchase notifications into commission-bearing
// conversions using last-click attribution within a fixed window.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/database"
	"github.com/promoledger/backend/internal/metrics"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/commission"
	"github.com/promoledger/backend/internal/services/forwarding"
	"github.com/promoledger/backend/internal/services/tracking"
	"gorm.io/gorm"
)

// DefaultWindow is the attribution window
const DefaultWindow = 30 * 24 * time.Hour

// AttributionService books conversions
type AttributionService struct {
	db         *gorm.DB
	links      *tracking.LinkService
	dispatcher *forwarding.Dispatcher
	window     time.Duration
	nowFn      func() time.Time
}

// NewAttributionService creates a new attribution service. dispatcher may be nil.
func NewAttributionService(db *gorm.DB, links *tracking.LinkService, dispatcher *forwarding.Dispatcher, window time.Duration) *AttributionService {
	if window <= 0 {
		window = DefaultWindow
	}
	return &AttributionService{
		db:         db,
		links:      links,
		dispatcher: dispatcher,
		window:     window,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *AttributionService) SetClock(now func() time.Time) {
	s.nowFn = now
}

// AttributeByCode resolves a public link code and attributes the purchase to it
func (s *AttributionService) AttributeByCode(ctx context.Context, code string, p Purchase) (*models.Conversion, error) {
	link, err := s.links.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	p.TrackingLinkID = link.ID
	return s.Attribute(ctx, p)
}

// Attribute books a PENDING conversion for the purchase. A repeated
// (brand, order) returns the stored conversion with ErrDuplicateConversion,
// which callers treat as success.
func (s *AttributionService) Attribute(ctx context.Context, p Purchase) (*models.Conversion, error) {
	p, err := ValidatePurchase(p)
	if err != nil {
		return nil, err
	}

	conv, err := s.attribute(ctx, p)
	metrics.ConversionsBooked.WithLabelValues(outcome(err)).Inc()
	return conv, err
}

func (s *AttributionService) attribute(ctx context.Context, p Purchase) (*models.Conversion, error) {
	db := s.db.WithContext(ctx)

	if p.BrandID != nil {
		if existing, err := s.findConversion(db, *p.BrandID, p.OrderID); err != nil || existing != nil {
			return duplicateOr(existing, err)
		}
	}

	var link models.TrackingLink
	if err := db.Preload("Product.Brand").First(&link, "id = ?", p.TrackingLinkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tracking link %s: %w", p.TrackingLinkID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding tracking link: %w", err)
	}
	brand := link.Product.Brand
	if brand.ID == uuid.Nil {
		return nil, fmt.Errorf("brand for product %s: %w", link.ProductID, apperrors.ErrNotFound)
	}

	if p.BrandID == nil {
		if existing, err := s.findConversion(db, brand.ID, p.OrderID); err != nil || existing != nil {
			return duplicateOr(existing, err)
		}
	} else if *p.BrandID != brand.ID {
		return nil, fmt.Errorf("tracking link %s: %w", p.TrackingLinkID, apperrors.ErrNotFound)
	}

	// Last click wins
	var click models.Click
	if err := db.Where("tracking_link_id = ?", link.ID).Order("clicked_at DESC").First(&click).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tracking link %s: %w", link.ID, apperrors.ErrNoAttribution)
		}
		return nil, fmt.Errorf("error finding click: %w", err)
	}

	now := s.nowFn()
	if now.Sub(click.ClickedAt) > s.window {
		return nil, fmt.Errorf("last click at %s: %w", click.ClickedAt.Format(time.RFC3339), apperrors.ErrAttributionExpired)
	}

	rate := commission.ResolveRate(link.Product, brand)
	conv := models.Conversion{
		TrackingLinkID:   link.ID,
		InfluencerID:     link.InfluencerID,
		BrandID:          brand.ID,
		ProductID:        link.ProductID,
		CampaignID:       link.CampaignID,
		OrderID:          p.OrderID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		CommissionRate:   rate,
		CommissionAmount: commission.Amount(p.Amount, rate),
		ClickedAt:        click.ClickedAt,
		ConvertedAt:      now,
		Status:           models.ConversionStatusPending,
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	// The unique index on (brand_id, order_id) settles concurrent deliveries
	if err := tx.Create(&conv).Error; err != nil {
		tx.Rollback()
		if database.IsUniqueViolation(err) {
			existing, findErr := s.findConversion(db, brand.ID, p.OrderID)
			return duplicateOr(existing, findErr)
		}
		return nil, fmt.Errorf("error creating conversion: %w", err)
	}

	if err := tx.Model(&models.TrackingLink{}).Where("id = ?", link.ID).Updates(map[string]interface{}{
		"conversions": gorm.Expr("conversions + ?", 1),
		"total_sales": gorm.Expr("total_sales + ?", p.Amount),
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error updating link counters: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("error committing conversion: %w", err)
	}

	log.Printf("conversion %s booked: brand %s order %s commission %s %s", conv.ID, brand.ID, conv.OrderID, conv.CommissionAmount.StringFixed(2), conv.Currency)
	s.dispatcher.Dispatch(forwarding.NewConversionEvent(forwarding.EventConversionCreated, conv))

	return &conv, nil
}

func (s *AttributionService) findConversion(db *gorm.DB, brandID uuid.UUID, orderID string) (*models.Conversion, error) {
	var conv models.Conversion
	err := db.Where("brand_id = ? AND order_id = ?", brandID, orderID).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("error finding conversion: %w", err)
}

func duplicateOr(existing *models.Conversion, err error) (*models.Conversion, error) {
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("error creating conversion: conflicting order disappeared")
	}
	return existing, fmt.Errorf("order %s: %w", existing.OrderID, apperrors.ErrDuplicateConversion)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, apperrors.ErrDuplicateConversion):
		return "duplicate"
	case errors.Is(err, apperrors.ErrNoAttribution):
		return "no_attribution"
	case errors.Is(err, apperrors.ErrAttributionExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
