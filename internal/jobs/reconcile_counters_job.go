package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/metrics"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/commission"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const reconcileBatchSize = 200

// ReconcileCountersJob rebuilds tracking link counters from the click and
// conversion tables
type ReconcileCountersJob struct {
	db *gorm.DB
}

// NewReconcileCountersJob creates a new reconcile job
func NewReconcileCountersJob(db *gorm.DB) *ReconcileCountersJob {
	return &ReconcileCountersJob{db: db}
}

type linkCounters struct {
	Clicks      int64
	LastClickAt *time.Time
	Conversions int64
	TotalSales  decimal.Decimal
}

// Run recomputes every link and returns how many were corrected
func (j *ReconcileCountersJob) Run(ctx context.Context) (int, error) {
	corrected := 0
	var links []models.TrackingLink

	result := j.db.WithContext(ctx).Model(&models.TrackingLink{}).
		FindInBatches(&links, reconcileBatchSize, func(tx *gorm.DB, batch int) error {
			for i := range links {
				fixed, err := j.reconcileLink(ctx, &links[i])
				if err != nil {
					return err
				}
				if fixed {
					corrected++
				}
			}
			return nil
		})
	if result.Error != nil {
		return corrected, fmt.Errorf("error reconciling link counters: %w", result.Error)
	}

	if corrected > 0 {
		log.Printf("Reconciled counters on %d tracking links", corrected)
		metrics.ReconciledLinks.Add(float64(corrected))
	}
	return corrected, nil
}

func (j *ReconcileCountersJob) reconcileLink(ctx context.Context, link *models.TrackingLink) (bool, error) {
	want, err := j.count(ctx, link.ID)
	if err != nil {
		return false, err
	}

	if link.Clicks == want.Clicks &&
		link.Conversions == want.Conversions &&
		link.TotalSales.Equal(want.TotalSales) &&
		sameTime(link.LastClickAt, want.LastClickAt) {
		return false, nil
	}

	if err := j.db.WithContext(ctx).Model(&models.TrackingLink{}).
		Where("id = ?", link.ID).
		Updates(map[string]interface{}{
			"clicks":        want.Clicks,
			"conversions":   want.Conversions,
			"total_sales":   want.TotalSales,
			"last_click_at": want.LastClickAt,
		}).Error; err != nil {
		return false, fmt.Errorf("error updating link %s: %w", link.ID, err)
	}
	return true, nil
}

func (j *ReconcileCountersJob) count(ctx context.Context, linkID uuid.UUID) (*linkCounters, error) {
	db := j.db.WithContext(ctx)
	c := &linkCounters{}

	if err := db.Model(&models.Click{}).Where("tracking_link_id = ?", linkID).Count(&c.Clicks).Error; err != nil {
		return nil, fmt.Errorf("error counting clicks: %w", err)
	}

	if c.Clicks > 0 {
		var last models.Click
		if err := db.Where("tracking_link_id = ?", linkID).Order("clicked_at DESC").First(&last).Error; err != nil {
			return nil, fmt.Errorf("error finding last click: %w", err)
		}
		at := last.ClickedAt
		c.LastClickAt = &at
	}

	var amounts []decimal.Decimal
	if err := db.Model(&models.Conversion{}).Where("tracking_link_id = ?", linkID).Pluck("amount", &amounts).Error; err != nil {
		return nil, fmt.Errorf("error summing conversions: %w", err)
	}
	c.Conversions = int64(len(amounts))
	c.TotalSales = commission.Sum(amounts...)
	return c, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
