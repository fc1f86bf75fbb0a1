// Package campaign decides whether an influencer may join a campaign
package campaign

import (
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Ineligibility reasons, in check order
const (
	ReasonNotActive       = "campaign is not active"
	ReasonNotStarted      = "campaign has not started"
	ReasonEnded           = "campaign has ended"
	ReasonBudgetExhausted = "campaign budget exhausted"
	ReasonMaxConversions  = "maximum conversions reached"
	ReasonNotTargeted     = "influencer is not targeted by this campaign"
)

// Usage is what a campaign has consumed so far
type Usage struct {
	CommissionPaidToDate decimal.Decimal `json:"commission_paid_to_date"`
	ConversionsToDate    int64           `json:"conversions_to_date"`
}

// Eligibility is the gate's verdict
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func ineligible(reason string) Eligibility {
	return Eligibility{Reason: reason}
}

// IsEligible runs the participation checks in a fixed order and reports the
// first that fails.
func IsEligible(c models.Campaign, usage Usage, influencerID uuid.UUID, now time.Time) Eligibility {
	if c.Status != models.CampaignStatusActive {
		return ineligible(ReasonNotActive)
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return ineligible(ReasonNotStarted)
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return ineligible(ReasonEnded)
	}
	if c.Budget != nil && usage.CommissionPaidToDate.GreaterThanOrEqual(*c.Budget) {
		return ineligible(ReasonBudgetExhausted)
	}
	if c.MaxConversions != nil && usage.ConversionsToDate >= int64(*c.MaxConversions) {
		return ineligible(ReasonMaxConversions)
	}
	if len(c.TargetInfluencerIDs) > 0 && !c.TargetInfluencerIDs.Contains(influencerID) {
		return ineligible(ReasonNotTargeted)
	}
	return Eligibility{Eligible: true}
}
