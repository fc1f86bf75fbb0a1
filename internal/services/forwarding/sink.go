// Package forwarding hands booked conversions to ad platforms. Forwarding is
// best effort and never feeds back into the ledger.
package forwarding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Event names
const (
	EventConversionCreated  = "conversion.created"
	EventConversionApproved = "conversion.approved"
)

// ConversionEvent is the payload forwarded for a conversion
type ConversionEvent struct {
	Event            string                  `json:"event"`
	ConversionID     uuid.UUID               `json:"conversion_id"`
	BrandID          uuid.UUID               `json:"brand_id"`
	InfluencerID     uuid.UUID               `json:"influencer_id"`
	ProductID        uuid.UUID               `json:"product_id"`
	TrackingLinkID   uuid.UUID               `json:"tracking_link_id"`
	CampaignID       *uuid.UUID              `json:"campaign_id,omitempty"`
	OrderID          string                  `json:"order_id"`
	Amount           decimal.Decimal         `json:"amount"`
	Currency         string                  `json:"currency"`
	CommissionAmount decimal.Decimal         `json:"commission_amount"`
	Status           models.ConversionStatus `json:"status"`
	ClickedAt        time.Time               `json:"clicked_at"`
	ConvertedAt      time.Time               `json:"converted_at"`
}

// NewConversionEvent builds the event for a conversion
func NewConversionEvent(event string, c models.Conversion) ConversionEvent {
	return ConversionEvent{
		Event:            event,
		ConversionID:     c.ID,
		BrandID:          c.BrandID,
		InfluencerID:     c.InfluencerID,
		ProductID:        c.ProductID,
		TrackingLinkID:   c.TrackingLinkID,
		CampaignID:       c.CampaignID,
		OrderID:          c.OrderID,
		Amount:           c.Amount,
		Currency:         c.Currency,
		CommissionAmount: c.CommissionAmount,
		Status:           c.Status,
		ClickedAt:        c.ClickedAt,
		ConvertedAt:      c.ConvertedAt,
	}
}

// Sink accepts conversion events for delivery
type Sink interface {
	Name() string
	Forward(ctx context.Context, event ConversionEvent) error
}

// NoopSink drops every event
type NoopSink struct{}

func (NoopSink) Name() string { return "noop" }

func (NoopSink) Forward(context.Context, ConversionEvent) error { return nil }
