package attribution

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Purchase is a purchase notification from a brand's webhook or pixel.
// BrandID is set when the caller authenticated as a brand; otherwise the
// link's brand is used.
type Purchase struct {
	BrandID        *uuid.UUID
	TrackingLinkID uuid.UUID
	OrderID        string `validate:"required,max=255"`
	Amount         decimal.Decimal
	Currency       string `validate:"required,len=3,alpha"`
}

// ValidatePurchase normalises p and reports the first invalid field. It runs
// before any ledger mutation.
func ValidatePurchase(p Purchase) (Purchase, error) {
	p.OrderID = strings.TrimSpace(p.OrderID)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))

	if err := validate.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			f := verrs[0]
			return p, apperrors.Invalid("%s failed %s validation", strings.ToLower(f.Field()), f.Tag())
		}
		return p, apperrors.Invalid("%v", err)
	}

	if !p.Amount.IsPositive() {
		return p, apperrors.Invalid("amount must be greater than zero")
	}
	if p.TrackingLinkID == uuid.Nil {
		return p, apperrors.Invalid("tracking link is required")
	}
	return p, nil
}
