package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/metrics"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/utils"
	"gorm.io/gorm"
)

// ClickMeta is what the redirect handler knows about the visitor
type ClickMeta struct {
	IPAddress string
	UserAgent string
	Referrer  string
}

// ClickResult tells the redirect handler where to send the visitor
type ClickResult struct {
	ClickID        uuid.UUID
	TrackingLinkID uuid.UUID
	DestinationURL string
}

// ClickService records clicks on tracking links
type ClickService struct {
	db    *gorm.DB
	links *LinkService
	nowFn func() time.Time
}

// NewClickService creates a new click service
func NewClickService(db *gorm.DB, links *LinkService) *ClickService {
	return &ClickService{
		db:    db,
		links: links,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *ClickService) SetClock(now func() time.Time) {
	s.nowFn = now
}

// RecordClick appends a click for code and bumps the link's display counters
func (s *ClickService) RecordClick(ctx context.Context, code string, meta ClickMeta) (*ClickResult, error) {
	link, err := s.links.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	click := models.Click{
		TrackingLinkID: link.ID,
		ClickedAt:      now,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		Referrer:       meta.Referrer,
		DeviceType:     utils.DeviceClass(meta.UserAgent),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&click).Error; err != nil {
			return fmt.Errorf("error recording click: %w", err)
		}
		if err := tx.Model(&models.TrackingLink{}).Where("id = ?", link.ID).Updates(map[string]interface{}{
			"clicks":        gorm.Expr("clicks + ?", 1),
			"last_click_at": now,
		}).Error; err != nil {
			return fmt.Errorf("error updating click counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ClicksRecorded.WithLabelValues(click.DeviceType).Inc()

	return &ClickResult{
		ClickID:        click.ID,
		TrackingLinkID: link.ID,
		DestinationURL: link.DestinationURL,
	}, nil
}
