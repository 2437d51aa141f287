package withdrawals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/repo"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Repository persists withdrawal requests. Every status change is a
// compare-and-set on the current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, w *models.Withdrawal) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	FindByPayoutReference(ctx context.Context, reference string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error)
	ListByStatus(ctx context.Context, status enums.WithdrawalStatus) ([]models.Withdrawal, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, fields map[string]any) (bool, error)
	SetPayout(ctx context.Context, id uuid.UUID, recipientCode, payoutReference string) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.DB(ctx).Create(w).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.DB(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.Locked(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) FindByPayoutReference(ctx context.Context, reference string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.DB(ctx).First(&w, "payout_reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByStatus returns the oldest requests first.
func (r *repository) ListByStatus(ctx context.Context, status enums.WithdrawalStatus) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	if err := r.DB(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition moves the row from one status to another, writing fields in the
// same statement. False means the row was not in the from status.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	res := r.DB(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(updates)
	return repo.Swapped(res)
}

func (r *repository) SetPayout(ctx context.Context, id uuid.UUID, recipientCode, payoutReference string) error {
	return r.DB(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"recipient_code":   recipientCode,
			"payout_reference": payoutReference,
			"updated_at":       time.Now().UTC(),
		}).Error
}
