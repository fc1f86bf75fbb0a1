// Package apperrors defines the error kinds shared by the ledger services and
// mapped to HTTP statuses by the handlers.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                        = errors.New("not found")
	ErrDuplicateConversion             = errors.New("duplicate conversion")
	ErrNoAttribution                   = errors.New("no click to attribute")
	ErrAttributionExpired              = errors.New("attribution window expired")
	ErrInvalidTransition               = errors.New("invalid status transition")
	ErrInsufficientBalance             = errors.New("insufficient balance")
	ErrAmountMismatch                  = errors.New("amount does not match selected conversions")
	ErrInsufficientApprovedConversions = errors.New("approved conversions cannot cover the requested amount")
	ErrInvalidInput                    = errors.New("invalid input")
	ErrCampaignIneligible              = errors.New("campaign ineligible")

	// ErrLinkInUse belongs to the invalid-transition class
	ErrLinkInUse = fmt.Errorf("%w: tracking link is referenced by conversions", ErrInvalidTransition)
)

// CampaignIneligibleError carries the gate's reason. It matches
// ErrCampaignIneligible under errors.Is.
type CampaignIneligibleError struct {
	Reason string
}

func (e *CampaignIneligibleError) Error() string {
	return fmt.Sprintf("campaign ineligible: %s", e.Reason)
}

func (e *CampaignIneligibleError) Is(target error) bool {
	return target == ErrCampaignIneligible
}

// Ineligible builds a CampaignIneligibleError
func Ineligible(reason string) error {
	return &CampaignIneligibleError{Reason: reason}
}

// Invalid wraps ErrInvalidInput with a field-level message
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Transition wraps ErrInvalidTransition with the offending edge
func Transition(entity, from, to string) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, entity, from, to)
}
