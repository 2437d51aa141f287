package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/repo"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
)

var (
	// ErrInsufficientFunds is returned when a conditional balance decrement matches no row.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	// ErrInsufficientPoints is returned when a conditional points decrement matches no row.
	ErrInsufficientPoints = errors.New("insufficient raffle points")
)

// Repository exposes user persistence. Balance and points only move through
// single-statement conditional updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	IncrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	DecrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	IncrementPoints(ctx context.Context, id uuid.UUID, points int64) error
	DecrementPoints(ctx context.Context, id uuid.UUID, points int64) error
}

type repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.DB(ctx).Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindForUpdate loads a user holding a row lock until the surrounding transaction ends.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.Locked(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) IncrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementBalance subtracts amount only if the balance covers it. Zero rows
// affected means either the user is missing or funds are short; the caller
// distinguishes by reloading.
func (r *repository) DecrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ? AND wallet_balance >= ?", id, amount).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (r *repository) IncrementPoints(ctx context.Context, id uuid.UUID, points int64) error {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("raffle_points", gorm.Expr("raffle_points + ?", points))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DecrementPoints(ctx context.Context, id uuid.UUID, points int64) error {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ? AND raffle_points >= ?", id, points).
		UpdateColumn("raffle_points", gorm.Expr("raffle_points - ?", points))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}
