package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// UserDTO is the transport shape of a user.
type UserDTO struct {
	ID            uuid.UUID        `json:"id"`
	UserNumber    string           `json:"user_number"`
	Email         string           `json:"email"`
	FirstName     string           `json:"first_name"`
	LastName      string           `json:"last_name"`
	WalletBalance decimal.Decimal  `json:"wallet_balance"`
	RafflePoints  int64            `json:"raffle_points"`
	Role          enums.UserRole   `json:"role"`
	Status        enums.UserStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:            u.ID,
		UserNumber:    u.UserNumber,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		WalletBalance: u.WalletBalance,
		RafflePoints:  u.RafflePoints,
		Role:          u.Role,
		Status:        u.Status,
		CreatedAt:     u.CreatedAt,
	}
}
