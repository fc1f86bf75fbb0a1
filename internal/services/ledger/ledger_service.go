// Package ledger owns conversion status changes and balance projections
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/metrics"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/commission"
	"github.com/promoledger/backend/internal/services/forwarding"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Balance is an influencer's commission split by conversion status
type Balance struct {
	InfluencerID uuid.UUID       `json:"influencer_id"`
	Pending      decimal.Decimal `json:"pending"`
	Available    decimal.Decimal `json:"available"`
	Paid         decimal.Decimal `json:"paid"`
}

// LedgerService handles conversion review and balance queries
type LedgerService struct {
	db         *gorm.DB
	dispatcher *forwarding.Dispatcher
	nowFn      func() time.Time
}

// NewLedgerService creates a new ledger service. dispatcher may be nil.
func NewLedgerService(db *gorm.DB, dispatcher *forwarding.Dispatcher) *LedgerService {
	return &LedgerService{
		db:         db,
		dispatcher: dispatcher,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *LedgerService) SetClock(now func() time.Time) {
	s.nowFn = now
}

// Get returns a conversion by id
func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*models.Conversion, error) {
	var conv models.Conversion
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversion %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding conversion: %w", err)
	}
	return &conv, nil
}

// Approve moves a PENDING conversion to APPROVED. Approving an approved
// conversion is a no-op.
func (s *LedgerService) Approve(ctx context.Context, id uuid.UUID) (*models.Conversion, error) {
	conv, changed, err := s.review(ctx, id, models.ConversionStatusApproved, "")
	if err != nil {
		return nil, err
	}
	if changed {
		s.dispatcher.Dispatch(forwarding.NewConversionEvent(forwarding.EventConversionApproved, *conv))
	}
	return conv, nil
}

// Reject moves a PENDING conversion to REJECTED. Rejecting a rejected
// conversion is a no-op and keeps the original reason.
func (s *LedgerService) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Conversion, error) {
	conv, _, err := s.review(ctx, id, models.ConversionStatusRejected, reason)
	return conv, err
}

func (s *LedgerService) review(ctx context.Context, id uuid.UUID, to models.ConversionStatus, reason string) (*models.Conversion, bool, error) {
	var conv models.Conversion
	changed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conv, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("conversion %s: %w", id, apperrors.ErrNotFound)
			}
			return fmt.Errorf("error finding conversion: %w", err)
		}

		if conv.Status == to {
			return nil
		}
		// PAID passes through APPROVED only via payout reversal
		if conv.Status != models.ConversionStatusPending || !CanTransition(conv.Status, to) {
			return apperrors.Transition("conversion", string(conv.Status), string(to))
		}

		now := s.nowFn()
		updates := map[string]interface{}{"status": to}
		if to == models.ConversionStatusApproved {
			updates["approved_at"] = now
			conv.ApprovedAt = &now
		} else {
			updates["rejected_at"] = now
			updates["rejection_reason"] = reason
			conv.RejectedAt = &now
			conv.RejectionReason = reason
		}

		res := tx.Model(&models.Conversion{}).
			Where("id = ? AND status = ?", conv.ID, models.ConversionStatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("error updating conversion: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperrors.Transition("conversion", string(conv.Status), string(to))
		}

		conv.Status = to
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		log.Printf("conversion %s %s", conv.ID, to)
		metrics.ConversionTransitions.WithLabelValues(string(to)).Inc()
	}
	return &conv, changed, nil
}

// AvailableBalance is the commission of the influencer's APPROVED conversions
func (s *LedgerService) AvailableBalance(ctx context.Context, influencerID uuid.UUID) (decimal.Decimal, error) {
	return SumCommission(s.db.WithContext(ctx), influencerID, models.ConversionStatusApproved)
}

// Balance returns the influencer's pending, available and paid commission
func (s *LedgerService) Balance(ctx context.Context, influencerID uuid.UUID) (*Balance, error) {
	type row struct {
		Status           models.ConversionStatus
		CommissionAmount decimal.Decimal
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Conversion{}).
		Select("status, commission_amount").
		Where("influencer_id = ? AND status <> ?", influencerID, models.ConversionStatusRejected).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error loading balance: %w", err)
	}

	b := &Balance{InfluencerID: influencerID, Pending: decimal.Zero, Available: decimal.Zero, Paid: decimal.Zero}
	for _, r := range rows {
		switch r.Status {
		case models.ConversionStatusPending:
			b.Pending = b.Pending.Add(r.CommissionAmount)
		case models.ConversionStatusApproved:
			b.Available = b.Available.Add(r.CommissionAmount)
		case models.ConversionStatusPaid:
			b.Paid = b.Paid.Add(r.CommissionAmount)
		}
	}
	return b, nil
}

// ListForInfluencer returns a page of conversions, newest first. status may be empty.
func (s *LedgerService) ListForInfluencer(ctx context.Context, influencerID uuid.UUID, status models.ConversionStatus, page, pageSize int) ([]models.Conversion, int64, error) {
	var conversions []models.Conversion
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Conversion{}).Where("influencer_id = ?", influencerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting conversions: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("converted_at DESC").Offset(offset).Limit(pageSize).Find(&conversions).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding conversions: %w", err)
	}

	return conversions, total, nil
}

// SumCommission adds up commission for an influencer's conversions in status.
// Amounts are summed in decimal rather than by the database.
func SumCommission(db *gorm.DB, influencerID uuid.UUID, status models.ConversionStatus) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := db.Model(&models.Conversion{}).
		Where("influencer_id = ? AND status = ?", influencerID, status).
		Pluck("commission_amount", &amounts).Error; err != nil {
		return decimal.Zero, fmt.Errorf("error summing commission: %w", err)
	}
	return commission.Sum(amounts...), nil
}
