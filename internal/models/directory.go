package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Brand is owned by the catalog service. The ledger only reads it.
type Brand struct {
	Base
	Name                  string          `gorm:"type:varchar(255);not null" json:"name"`
	DefaultCommissionRate decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"default_commission_rate"`
	WebhookSecret         string          `gorm:"type:varchar(255)" json:"-"`
	PostbackURL           string          `gorm:"type:text" json:"postback_url,omitempty"`
}

// Product is owned by the catalog service
type Product struct {
	Base
	BrandID        uuid.UUID        `gorm:"type:uuid;index;not null" json:"brand_id"`
	Brand          Brand            `gorm:"foreignKey:BrandID" json:"-"`
	Name           string           `gorm:"type:varchar(255);not null" json:"name"`
	ProductURL     string           `gorm:"type:text;not null" json:"product_url"`
	CommissionRate *decimal.Decimal `gorm:"type:decimal(20,8)" json:"commission_rate,omitempty"`
}

// InfluencerStatus represents an influencer account state
type InfluencerStatus string

const (
	InfluencerStatusActive    InfluencerStatus = "active"
	InfluencerStatusSuspended InfluencerStatus = "suspended"
)

// Influencer is owned by the identity service
type Influencer struct {
	Base
	UserID      uuid.UUID        `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	DisplayName string           `gorm:"type:varchar(255)" json:"display_name"`
	Status      InfluencerStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
}

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft  CampaignStatus = "DRAFT"
	CampaignStatusActive CampaignStatus = "ACTIVE"
	CampaignStatusPaused CampaignStatus = "PAUSED"
	CampaignStatusEnded  CampaignStatus = "ENDED"
)

// Campaign is owned by the campaign service. An empty TargetInfluencerIDs
// list means every influencer may participate.
type Campaign struct {
	Base
	BrandID             uuid.UUID        `gorm:"type:uuid;index;not null" json:"brand_id"`
	Name                string           `gorm:"type:varchar(255);not null" json:"name"`
	Status              CampaignStatus   `gorm:"type:varchar(20);not null" json:"status"`
	StartDate           *time.Time       `json:"start_date,omitempty"`
	EndDate             *time.Time       `json:"end_date,omitempty"`
	Budget              *decimal.Decimal `gorm:"type:decimal(20,8)" json:"budget,omitempty"`
	MaxConversions      *int             `json:"max_conversions,omitempty"`
	TargetInfluencerIDs UUIDList         `gorm:"type:jsonb" json:"target_influencer_ids"`
}
