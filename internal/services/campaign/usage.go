package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/commission"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ComputeUsage derives a campaign's usage from the conversion ledger:
// commission of PAID conversions and the count of non-rejected ones.
func ComputeUsage(ctx context.Context, db *gorm.DB, campaignID uuid.UUID) (Usage, error) {
	var usage Usage

	var paid []decimal.Decimal
	if err := db.WithContext(ctx).Model(&models.Conversion{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.ConversionStatusPaid).
		Pluck("commission_amount", &paid).Error; err != nil {
		return usage, fmt.Errorf("error summing campaign commission: %w", err)
	}
	usage.CommissionPaidToDate = commission.Sum(paid...)

	if err := db.WithContext(ctx).Model(&models.Conversion{}).
		Where("campaign_id = ? AND status <> ?", campaignID, models.ConversionStatusRejected).
		Count(&usage.ConversionsToDate).Error; err != nil {
		return usage, fmt.Errorf("error counting campaign conversions: %w", err)
	}

	return usage, nil
}
