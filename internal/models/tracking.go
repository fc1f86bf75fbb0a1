package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TrackingLink is the unique (influencer, product) link. Clicks, Conversions,
// TotalSales and LastClickAt are display counters rebuilt by the reconcile job.
type TrackingLink struct {
	Base
	InfluencerID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_tracking_links_influencer_product" json:"influencer_id"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_tracking_links_influencer_product" json:"product_id"`
	Product      Product         `gorm:"foreignKey:ProductID" json:"-"`
	CampaignID   *uuid.UUID      `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	Code         string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Clicks       int64           `gorm:"not null;default:0" json:"clicks"`
	Conversions  int64           `gorm:"not null;default:0" json:"conversions"`
	TotalSales   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_sales"`
	LastClickAt  *time.Time      `json:"last_click_at,omitempty"`
}

// Device classes recorded on clicks
const (
	DeviceBot     = "bot"
	DeviceTablet  = "tablet"
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// Click is an append-only click event
type Click struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TrackingLinkID uuid.UUID `gorm:"type:uuid;not null;index:idx_clicks_link_time" json:"tracking_link_id"`
	ClickedAt      time.Time `gorm:"not null;index:idx_clicks_link_time" json:"clicked_at"`
	IPAddress      string    `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent      string    `gorm:"type:text" json:"user_agent"`
	Referrer       string    `gorm:"type:text" json:"referrer"`
	DeviceType     string    `gorm:"type:varchar(20)" json:"device_type"`
}

// BeforeCreate assigns the click id
func (c *Click) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
