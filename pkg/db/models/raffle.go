package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Raffle tracks ticket inventory and, once drawn, the winner.
type Raffle struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ItemID          uuid.UUID          `gorm:"column:item_id;type:uuid;not null;index"`
	TicketPrice     decimal.Decimal    `gorm:"column:ticket_price;type:numeric(14,2);not null"`
	TicketsTotal    int                `gorm:"column:tickets_total;not null;check:chk_raffles_tickets_total,tickets_total > 0"`
	TicketsSold     int                `gorm:"column:tickets_sold;not null;default:0;check:chk_raffles_capacity,tickets_sold <= tickets_total"`
	RaffleDate      time.Time          `gorm:"column:raffle_date;not null"`
	Status          enums.RaffleStatus `gorm:"column:status;type:text;not null;default:SCHEDULED"`
	WinnerUserID    *uuid.UUID         `gorm:"column:winner_user_id;type:uuid"`
	WinningTicketID *uuid.UUID         `gorm:"column:winning_ticket_id;type:uuid"`
	DrawnAt         *time.Time         `gorm:"column:drawn_at"`
	DrawSeed        *string            `gorm:"column:draw_seed"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Raffle) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
