// Package payout batches approved commission into payouts and drives the
// payout lifecycle with compensating reversal of the settled conversions.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/metrics"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/commission"
	"github.com/promoledger/backend/internal/services/ledger"
	"github.com/promoledger/backend/internal/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferencePrefix prefixes payout references
const ReferencePrefix = "PAY"

var validate = validator.New()

// PayoutRequest is an influencer's withdrawal request. ConversionIDs is
// optional; when empty the oldest approved conversions are selected.
type PayoutRequest struct {
	InfluencerID  uuid.UUID `validate:"required"`
	Amount        decimal.Decimal
	Currency      string `validate:"required,len=3,alpha"`
	Method        string `validate:"required,oneof=bank_transfer mobile_money paypal crypto"`
	Details       models.JSON
	ConversionIDs []uuid.UUID
}

// PayoutService handles payout requests and status changes
type PayoutService struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewPayoutService creates a new payout service
func NewPayoutService(db *gorm.DB) *PayoutService {
	return &PayoutService{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (s *PayoutService) SetClock(now func() time.Time) {
	s.nowFn = now
}

func validateRequest(req PayoutRequest) (PayoutRequest, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))

	if err := validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			f := verrs[0]
			return req, apperrors.Invalid("%s failed %s validation", strings.ToLower(f.Field()), f.Tag())
		}
		return req, apperrors.Invalid("%v", err)
	}
	if !req.Amount.IsPositive() {
		return req, apperrors.Invalid("amount must be greater than zero")
	}
	return req, nil
}

// RequestPayout opens a PENDING payout and settles the selected conversions
// in the same transaction
func (s *PayoutService) RequestPayout(ctx context.Context, req PayoutRequest) (*models.Payout, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var approved []models.Conversion
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("influencer_id = ? AND status = ? AND currency = ? AND payout_id IS NULL",
			req.InfluencerID, models.ConversionStatusApproved, req.Currency).
		Order("converted_at ASC, id ASC").
		Find(&approved).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error locking approved conversions: %w", err)
	}

	balance := decimal.Zero
	for _, c := range approved {
		balance = balance.Add(c.CommissionAmount)
	}
	if req.Amount.GreaterThan(balance) {
		tx.Rollback()
		return nil, fmt.Errorf("requested %s, available %s: %w", req.Amount, balance, apperrors.ErrInsufficientBalance)
	}

	var ids []uuid.UUID
	if len(req.ConversionIDs) > 0 {
		ids, _, err = selectExplicit(approved, req.ConversionIDs, req.Amount)
	} else {
		ids, _, err = selectOldestFirst(approved, req.Amount)
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := s.nowFn()
	payout := models.Payout{
		Reference:     utils.GenerateReference(ReferencePrefix, now),
		InfluencerID:  req.InfluencerID,
		Amount:        req.Amount.Round(commission.Scale),
		Currency:      req.Currency,
		Method:        req.Method,
		PayoutDetails: req.Details,
		ConversionIDs: models.UUIDList(ids),
		Status:        models.PayoutStatusPending,
	}
	if err := tx.Create(&payout).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error creating payout: %w", err)
	}

	if err := ledger.MarkPaid(tx, payout.ID, ids); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := writeHistory(tx, payout.ID, "", models.PayoutStatusPending, "payout requested", nil); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("error committing payout: %w", err)
	}

	log.Printf("payout %s opened for influencer %s: %s %s over %d conversions",
		payout.Reference, payout.InfluencerID, payout.Amount, payout.Currency, len(ids))
	metrics.PayoutTransitions.WithLabelValues(string(models.PayoutStatusPending)).Inc()
	return &payout, nil
}

// Process moves a PENDING payout to PROCESSING
func (s *PayoutService) Process(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, id, nil, models.PayoutStatusProcessing, "processing", actor,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			p.ProcessedAt = &now
			return map[string]interface{}{"processed_at": now}, nil
		})
}

// Complete moves a PROCESSING payout to COMPLETED and stamps its conversions
func (s *PayoutService) Complete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, id, nil, models.PayoutStatusCompleted, "completed", actor,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			if err := ledger.StampPaid(tx, p.ID, now); err != nil {
				return nil, err
			}
			p.CompletedAt = &now
			return map[string]interface{}{"completed_at": now}, nil
		})
}

// Fail moves a PENDING or PROCESSING payout to FAILED and returns its
// conversions to APPROVED
func (s *PayoutService) Fail(ctx context.Context, id uuid.UUID, reason string, actor *uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, id, nil, models.PayoutStatusFailed, reason, actor,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			if _, err := ledger.Reverse(tx, p.ID); err != nil {
				return nil, err
			}
			p.FailedAt = &now
			p.FailureReason = reason
			return map[string]interface{}{"failed_at": now, "failure_reason": reason}, nil
		})
}

// Cancel moves a PENDING payout to CANCELLED and returns its conversions to APPROVED
func (s *PayoutService) Cancel(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
	return s.cancel(ctx, id, nil, actor)
}

// CancelForInfluencer cancels the influencer's own payout. Payouts belonging
// to someone else report NotFound.
func (s *PayoutService) CancelForInfluencer(ctx context.Context, id, influencerID uuid.UUID) (*models.Payout, error) {
	return s.cancel(ctx, id, &influencerID, nil)
}

func (s *PayoutService) cancel(ctx context.Context, id uuid.UUID, owner *uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, id, owner, models.PayoutStatusCancelled, "cancelled", actor,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			if _, err := ledger.Reverse(tx, p.ID); err != nil {
				return nil, err
			}
			p.CancelledAt = &now
			return map[string]interface{}{"cancelled_at": now}, nil
		})
}

// Retry moves a FAILED payout back to PENDING, re-claiming the conversions
// it recorded. They must all still be approved and unclaimed.
func (s *PayoutService) Retry(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
	return s.transition(ctx, id, nil, models.PayoutStatusPending, "retry", actor,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			if err := ledger.MarkPaid(tx, p.ID, []uuid.UUID(p.ConversionIDs)); err != nil {
				return nil, err
			}
			p.FailureReason = ""
			return map[string]interface{}{"failure_reason": ""}, nil
		})
}

type applyFn func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error)

func (s *PayoutService) transition(ctx context.Context, id uuid.UUID, owner *uuid.UUID, to models.PayoutStatus, note string, actor *uuid.UUID, apply applyFn) (*models.Payout, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var payout models.Payout
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id)
	if owner != nil {
		query = query.Where("influencer_id = ?", *owner)
	}
	if err := query.First(&payout).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payout %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding payout: %w", err)
	}

	from := payout.Status
	if IsTerminal(from) || !CanTransition(from, to) {
		tx.Rollback()
		return nil, apperrors.Transition("payout", string(from), string(to))
	}

	now := s.nowFn()
	updates, err := apply(tx, &payout, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	updates["status"] = to

	res := tx.Model(&models.Payout{}).Where("id = ? AND status = ?", payout.ID, from).Updates(updates)
	if res.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error updating payout: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		tx.Rollback()
		return nil, apperrors.Transition("payout", string(from), string(to))
	}
	payout.Status = to

	if err := writeHistory(tx, payout.ID, from, to, note, actor); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("error committing payout transition: %w", err)
	}

	log.Printf("payout %s %s -> %s", payout.Reference, from, to)
	metrics.PayoutTransitions.WithLabelValues(string(to)).Inc()
	return &payout, nil
}

func writeHistory(tx *gorm.DB, payoutID uuid.UUID, from, to models.PayoutStatus, note string, actor *uuid.UUID) error {
	entry := models.PayoutHistory{
		PayoutID:   payoutID,
		FromStatus: from,
		ToStatus:   to,
		Note:       note,
		ChangedBy:  actor,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("error writing payout history: %w", err)
	}
	return nil
}

// Get returns a payout by id
func (s *PayoutService) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := s.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payout %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding payout: %w", err)
	}
	return &payout, nil
}

// ListForInfluencer returns a page of the influencer's payouts, newest first
func (s *PayoutService) ListForInfluencer(ctx context.Context, influencerID uuid.UUID, page, pageSize int) ([]models.Payout, int64, error) {
	var payouts []models.Payout
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Payout{}).Where("influencer_id = ?", influencerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting payouts: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&payouts).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding payouts: %w", err)
	}
	return payouts, total, nil
}

// History returns a payout's status changes in order
func (s *PayoutService) History(ctx context.Context, payoutID uuid.UUID) ([]models.PayoutHistory, error) {
	var entries []models.PayoutHistory
	if err := s.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error finding payout history: %w", err)
	}
	return entries, nil
}
