package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Withdrawal is a payout request. The wallet is debited when the row is
// created; a rejection refunds the same amount.
type Withdrawal struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Amount          decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	BankName        string                 `gorm:"column:bank_name;not null"`
	AccountNumber   string                 `gorm:"column:account_number;not null"`
	AccountName     string                 `gorm:"column:account_name;not null"`
	BankCode        string                 `gorm:"column:bank_code;not null"`
	Status          enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:PENDING;index"`
	TransactionID   uuid.UUID              `gorm:"column:transaction_id;type:uuid;not null"`
	RecipientCode   *string                `gorm:"column:recipient_code"`
	PayoutReference *string                `gorm:"column:payout_reference;uniqueIndex:ux_withdrawals_payout_reference"`
	RejectionReason *string                `gorm:"column:rejection_reason"`
	ProcessedBy     *uuid.UUID             `gorm:"column:processed_by;type:uuid"`
	ProcessedAt     *time.Time             `gorm:"column:processed_at"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Withdrawal) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
