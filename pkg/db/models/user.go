package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// User is the account holder whose wallet and points the ledger mutates.
// WalletBalance and RafflePoints are only ever changed through conditional
// increments/decrements in the users repository.
type User struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserNumber    string           `gorm:"column:user_number;type:text;not null;uniqueIndex:ux_users_user_number"`
	Email         string           `gorm:"column:email;type:text;not null;uniqueIndex:ux_users_email"`
	FirstName     string           `gorm:"column:first_name;not null"`
	LastName      string           `gorm:"column:last_name;not null"`
	WalletBalance decimal.Decimal  `gorm:"column:wallet_balance;type:numeric(14,2);not null;default:0;check:chk_users_wallet_balance,wallet_balance >= 0"`
	RafflePoints  int64            `gorm:"column:raffle_points;not null;default:0;check:chk_users_raffle_points,raffle_points >= 0"`
	Role          enums.UserRole   `gorm:"column:role;type:text;not null;default:USER"`
	Status        enums.UserStatus `gorm:"column:status;type:text;not null;default:ACTIVE"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// FullName joins first and last name for display.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
