package raffles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/repo"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Outcome is what a completed draw writes onto the raffle row.
type Outcome struct {
	WinnerUserID    uuid.UUID
	WinningTicketID uuid.UUID
	DrawnAt         time.Time
	DrawSeed        string
}

// Repository persists raffles and their prize items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, raffle *models.Raffle) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
	IncrementTicketsSold(ctx context.Context, id uuid.UUID) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, outcome Outcome) (bool, error)
	FindItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	MarkItemAwarded(ctx context.Context, id uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, raffle *models.Raffle) error {
	return r.DB(ctx).Create(raffle).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	if err := r.DB(ctx).First(&raffle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &raffle, nil
}

// FindForUpdate locks the raffle row for the rest of the transaction,
// serialising purchases and draws on the same raffle.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	if err := r.Locked(ctx).First(&raffle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &raffle, nil
}

// IncrementTicketsSold takes one seat if capacity remains and the raffle is
// open, moving SCHEDULED to ACTIVE in the same statement. False means no seat
// was taken.
func (r *repository) IncrementTicketsSold(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Raffle{}).
		Where("id = ? AND tickets_sold < tickets_total AND status IN ?", id,
			[]enums.RaffleStatus{enums.RaffleStatusScheduled, enums.RaffleStatusActive}).
		UpdateColumns(map[string]any{
			"tickets_sold": gorm.Expr("tickets_sold + 1"),
			"status":       gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", enums.RaffleStatusScheduled, enums.RaffleStatusActive),
			"updated_at":   time.Now().UTC(),
		})
	return repo.Swapped(res)
}

// Complete is the compare-and-set from an open status to COMPLETED. Only one
// caller can ever see true for a given raffle.
func (r *repository) Complete(ctx context.Context, id uuid.UUID, outcome Outcome) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Raffle{}).
		Where("id = ? AND status IN ?", id,
			[]enums.RaffleStatus{enums.RaffleStatusScheduled, enums.RaffleStatusActive}).
		UpdateColumns(map[string]any{
			"status":            enums.RaffleStatusCompleted,
			"winner_user_id":    outcome.WinnerUserID,
			"winning_ticket_id": outcome.WinningTicketID,
			"drawn_at":          outcome.DrawnAt,
			"draw_seed":         outcome.DrawSeed,
			"updated_at":        time.Now().UTC(),
		})
	return repo.Swapped(res)
}

func (r *repository) FindItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.DB(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) MarkItemAwarded(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.Item{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     enums.ItemStatusAwarded,
			"updated_at": time.Now().UTC(),
		}).Error
}
