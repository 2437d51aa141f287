package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Ticket is a user's single entry in a raffle.
type Ticket struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_tickets_user_raffle,priority:1"`
	RaffleID      uuid.UUID           `gorm:"column:raffle_id;type:uuid;not null;uniqueIndex:ux_tickets_user_raffle,priority:2;index:idx_tickets_raffle_status,priority:1"`
	TicketNumber  string              `gorm:"column:ticket_number;type:text;not null;uniqueIndex:ux_tickets_ticket_number"`
	Status        enums.TicketStatus  `gorm:"column:status;type:text;not null;default:ACTIVE;index:idx_tickets_raffle_status,priority:2"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	AmountPaid    decimal.Decimal     `gorm:"column:amount_paid;type:numeric(14,2);not null;default:0"`
	PointsPaid    int64               `gorm:"column:points_paid;not null;default:0"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Ticket) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
