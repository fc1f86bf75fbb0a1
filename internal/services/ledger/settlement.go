package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/models"
	"gorm.io/gorm"
)

// MarkPaid flips APPROVED, unclaimed conversions to PAID under payoutID.
// It must run inside the payout transaction; any conversion that is no
// longer claimable fails the whole call.
func MarkPaid(tx *gorm.DB, payoutID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if !CanTransition(models.ConversionStatusApproved, models.ConversionStatusPaid) {
		return apperrors.Transition("conversion", string(models.ConversionStatusApproved), string(models.ConversionStatusPaid))
	}

	res := tx.Model(&models.Conversion{}).
		Where("id IN ? AND status = ? AND payout_id IS NULL", ids, models.ConversionStatusApproved).
		Updates(map[string]interface{}{
			"status":    models.ConversionStatusPaid,
			"payout_id": payoutID,
		})
	if res.Error != nil {
		return fmt.Errorf("error settling conversions: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("settled %d of %d conversions: %w", res.RowsAffected, len(ids), apperrors.ErrInsufficientApprovedConversions)
	}
	return nil
}

// Reverse returns a payout's PAID conversions to APPROVED and releases them.
// It must run inside the payout transaction.
func Reverse(tx *gorm.DB, payoutID uuid.UUID) (int64, error) {
	if !CanTransition(models.ConversionStatusPaid, models.ConversionStatusApproved) {
		return 0, apperrors.Transition("conversion", string(models.ConversionStatusPaid), string(models.ConversionStatusApproved))
	}

	res := tx.Model(&models.Conversion{}).
		Where("payout_id = ? AND status = ?", payoutID, models.ConversionStatusPaid).
		Updates(map[string]interface{}{
			"status":    models.ConversionStatusApproved,
			"payout_id": nil,
			"paid_at":   nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("error reversing conversions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// StampPaid records when a payout's conversions were actually paid out
func StampPaid(tx *gorm.DB, payoutID uuid.UUID, at time.Time) error {
	if err := tx.Model(&models.Conversion{}).
		Where("payout_id = ? AND status = ?", payoutID, models.ConversionStatusPaid).
		Update("paid_at", at).Error; err != nil {
		return fmt.Errorf("error stamping paid conversions: %w", err)
	}
	return nil
}
