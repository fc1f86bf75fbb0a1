package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus represents the state of a payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// Payout methods
const (
	PayoutMethodBankTransfer = "bank_transfer"
	PayoutMethodMobileMoney  = "mobile_money"
	PayoutMethodPayPal       = "paypal"
	PayoutMethodCrypto       = "crypto"
)

// Payout is a disbursement to an influencer settling a set of conversions
type Payout struct {
	Base
	Reference     string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"reference"`
	InfluencerID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"influencer_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	Method        string          `gorm:"type:varchar(50);not null" json:"method"`
	PayoutDetails JSON            `gorm:"type:jsonb" json:"payout_details"`
	ConversionIDs UUIDList        `gorm:"type:jsonb;not null" json:"conversion_ids"`
	Status        PayoutStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason string          `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

// PayoutHistory represents the history of a payout's status changes
type PayoutHistory struct {
	Base
	PayoutID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"payout_id"`
	FromStatus PayoutStatus `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus   PayoutStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	Note       string       `gorm:"type:text" json:"note"`
	ChangedBy  *uuid.UUID   `gorm:"type:uuid" json:"changed_by,omitempty"` // nil for system changes
}
