package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/repo"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Repository manages persistence for ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	// TransitionByReference flips a PENDING record to the target status and
	// reports whether a row changed.
	TransitionByReference(ctx context.Context, reference string, to enums.TransactionStatus, failReason *string) (bool, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
	ListPendingBefore(ctx context.Context, typ enums.TransactionType, before time.Time, limit int) ([]models.Transaction, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.DB(ctx).Create(txn).Error
}

func (r *repository) TransitionByReference(ctx context.Context, reference string, to enums.TransactionStatus, failReason *string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if failReason != nil {
		updates["fail_reason"] = *failReason
	}
	res := r.DB(ctx).
		Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, enums.TransactionStatusPending).
		UpdateColumns(updates)
	return repo.Swapped(res)
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.DB(ctx).First(&txn, "reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, typ enums.TransactionType, before time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.DB(ctx).
		Where("type = ? AND status = ? AND created_at < ? AND reference IS NOT NULL", typ, enums.TransactionStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
