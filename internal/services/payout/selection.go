package payout

import (
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/commission"
	"github.com/shopspring/decimal"
)

// selectOldestFirst takes whole conversions in the given order until the
// running sum reaches amount - tolerance. The result must land within
// tolerance of amount; overshooting fails.
func selectOldestFirst(approved []models.Conversion, amount decimal.Decimal) ([]uuid.UUID, decimal.Decimal, error) {
	floor := amount.Sub(commission.Tolerance)
	sum := decimal.Zero
	var ids []uuid.UUID

	for _, c := range approved {
		if sum.GreaterThanOrEqual(floor) {
			break
		}
		sum = sum.Add(c.CommissionAmount)
		ids = append(ids, c.ID)
	}

	if !commission.WithinTolerance(sum, amount) {
		return nil, decimal.Zero, apperrors.ErrInsufficientApprovedConversions
	}
	return ids, sum, nil
}

// selectExplicit checks that every requested id is among the locked approved
// conversions and that they add up to amount.
func selectExplicit(approved []models.Conversion, requested []uuid.UUID, amount decimal.Decimal) ([]uuid.UUID, decimal.Decimal, error) {
	byID := make(map[uuid.UUID]models.Conversion, len(approved))
	for _, c := range approved {
		byID[c.ID] = c
	}

	seen := make(map[uuid.UUID]bool, len(requested))
	sum := decimal.Zero
	ids := make([]uuid.UUID, 0, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true

		c, ok := byID[id]
		if !ok {
			return nil, decimal.Zero, apperrors.ErrAmountMismatch
		}
		sum = sum.Add(c.CommissionAmount)
		ids = append(ids, id)
	}

	if !commission.WithinTolerance(sum, amount) {
		return nil, decimal.Zero, apperrors.ErrAmountMismatch
	}
	return ids, sum, nil
}
