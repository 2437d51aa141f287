package tickets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/repo"
	dbpkg "github.com/angelmondragon/rafflepot-backend/pkg/db"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

var (
	// ErrDuplicateTicket is returned when the (user, raffle) pair already holds a ticket.
	ErrDuplicateTicket = errors.New("user already holds a ticket for this raffle")
	// ErrTicketNumberTaken is returned on the negligible ticket number collision.
	ErrTicketNumberTaken = errors.New("ticket number already issued")
)

// Repository persists tickets. The (user_id, raffle_id) unique index is the
// final arbiter of one ticket per user per raffle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ticket *models.Ticket) error
	ExistsForUser(ctx context.Context, userID, raffleID uuid.UUID) (bool, error)
	ListActiveByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Ticket, error)
	MarkWon(ctx context.Context, ticketID uuid.UUID) (int64, error)
	MarkLostExcept(ctx context.Context, raffleID, winningTicketID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error)
	ListByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Ticket, error)
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

func (r *repository) Create(ctx context.Context, ticket *models.Ticket) error {
	err := r.DB(ctx).Create(ticket).Error
	switch {
	case err == nil:
		return nil
	case dbpkg.IsUniqueViolation(err, "ux_tickets_user_raffle"):
		return ErrDuplicateTicket
	case dbpkg.IsUniqueViolation(err, "ux_tickets_ticket_number"):
		return ErrTicketNumberTaken
	}
	return err
}

func (r *repository) ExistsForUser(ctx context.Context, userID, raffleID uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB(ctx).
		Model(&models.Ticket{}).
		Where("user_id = ? AND raffle_id = ?", userID, raffleID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListActiveByRaffle returns ACTIVE tickets in creation order, ties broken by
// id, so the sequence is fixed before a draw picks an index into it.
func (r *repository) ListActiveByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Ticket, error) {
	var rows []models.Ticket
	if err := r.DB(ctx).
		Where("raffle_id = ? AND status = ?", raffleID, enums.TicketStatusActive).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkWon(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketStatusActive).
		UpdateColumns(map[string]any{
			"status":     enums.TicketStatusWon,
			"updated_at": time.Now().UTC(),
		})
	return repo.Counted(res)
}

func (r *repository) MarkLostExcept(ctx context.Context, raffleID, winningTicketID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Ticket{}).
		Where("raffle_id = ? AND id <> ? AND status = ?", raffleID, winningTicketID, enums.TicketStatusActive).
		UpdateColumns(map[string]any{
			"status":     enums.TicketStatusLost,
			"updated_at": time.Now().UTC(),
		})
	return repo.Counted(res)
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	var rows []models.Ticket
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByRaffle(ctx context.Context, raffleID uuid.UUID) ([]models.Ticket, error) {
	var rows []models.Ticket
	if err := r.DB(ctx).
		Where("raffle_id = ?", raffleID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
