package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversionStatus represents the ledger state of a conversion
type ConversionStatus string

const (
	ConversionStatusPending  ConversionStatus = "PENDING"
	ConversionStatusApproved ConversionStatus = "APPROVED"
	ConversionStatusRejected ConversionStatus = "REJECTED"
	ConversionStatusPaid     ConversionStatus = "PAID"
)

// Conversion is an attributed purchase and the commission owed for it.
// Conversions are never deleted.
type Conversion struct {
	Base
	TrackingLinkID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"tracking_link_id"`
	InfluencerID     uuid.UUID        `gorm:"type:uuid;not null;index:idx_conversions_influencer_status" json:"influencer_id"`
	BrandID          uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_conversions_brand_order" json:"brand_id"`
	ProductID        uuid.UUID        `gorm:"type:uuid;not null" json:"product_id"`
	CampaignID       *uuid.UUID       `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	OrderID          string           `gorm:"type:varchar(255);not null;uniqueIndex:idx_conversions_brand_order" json:"order_id"`
	Amount           decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency         string           `gorm:"type:varchar(3);not null" json:"currency"`
	CommissionRate   decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"commission_rate"`
	CommissionAmount decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"commission_amount"`
	FraudScore       *decimal.Decimal `gorm:"type:decimal(5,4)" json:"fraud_score,omitempty"`
	ClickedAt        time.Time        `gorm:"not null" json:"clicked_at"`
	ConvertedAt      time.Time        `gorm:"not null;index" json:"converted_at"`
	Status           ConversionStatus `gorm:"type:varchar(20);not null;index:idx_conversions_influencer_status" json:"status"`
	PayoutID         *uuid.UUID       `gorm:"type:uuid;index" json:"payout_id,omitempty"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	RejectedAt       *time.Time       `json:"rejected_at,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	RejectionReason  string           `gorm:"type:text" json:"rejection_reason,omitempty"`
}
