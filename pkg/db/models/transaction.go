package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Transaction is an append-only ledger entry. Only Status (PENDING to a
// terminal state) and UpdatedAt ever change after insert.
type Transaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index:idx_transactions_user_created,priority:1"`
	Type        enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Amount      decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Status      enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	Reference   *string                 `gorm:"column:reference;type:text;uniqueIndex:ux_transactions_reference"`
	Description *string                 `gorm:"column:description"`
	Metadata    json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	FailReason  *string                 `gorm:"column:fail_reason"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime;index:idx_transactions_user_created,priority:2"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ReferenceValue returns the external reference or "" when unset.
func (t *Transaction) ReferenceValue() string {
	if t.Reference == nil {
		return ""
	}
	return *t.Reference
}
