package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/raffles"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/internal/wallet"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
)

// Sub-reasons carried in error details.
const (
	ReasonRaffleNotOpen   = "raffle_not_open"
	ReasonSoldOut         = "sold_out"
	ReasonDuplicateTicket = "duplicate_ticket"
)

// BuyTicketInput describes a purchase. PointsRate is the number of raffle
// points per currency unit; zero selects the configured default.
type BuyTicketInput struct {
	RaffleID      uuid.UUID
	PaymentMethod enums.PaymentMethod
	PointsRate    decimal.Decimal
}

type ServiceParams struct {
	DB          wallet.TxRunner
	Users       users.Repository
	Raffles     raffles.Repository
	Tickets     Repository
	Wallet      *wallet.Service
	Numbers     NumberGenerator
	DefaultRate decimal.Decimal
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service is the ticket purchase engine.
type Service struct {
	db          wallet.TxRunner
	users       users.Repository
	raffles     raffles.Repository
	tickets     Repository
	wallet      *wallet.Service
	numbers     NumberGenerator
	defaultRate decimal.Decimal
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.DB == nil || p.Users == nil || p.Raffles == nil || p.Tickets == nil || p.Wallet == nil {
		return nil, fmt.Errorf("tickets service: missing dependency")
	}
	if !p.DefaultRate.IsPositive() {
		return nil, fmt.Errorf("tickets service: default points rate must be positive")
	}
	if p.Numbers == nil {
		p.Numbers = RandomNumbers{}
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		db:          p.DB,
		users:       p.Users,
		raffles:     p.Raffles,
		tickets:     p.Tickets,
		wallet:      p.Wallet,
		numbers:     p.Numbers,
		defaultRate: p.DefaultRate,
		metrics:     p.Metrics,
		logg:        p.Logger,
		now:         p.Now,
	}, nil
}

// PointsPrice converts a currency price to points, rounding up so a points
// purchase never costs less than its currency equivalent.
func PointsPrice(price, rate decimal.Decimal) int64 {
	return price.Mul(rate).Ceil().IntPart()
}

// BuyTicket issues one ticket to the principal. Checks run in order under the
// raffle row lock: raffle open, capacity, account standing, existing ticket,
// then funds. All
// effects commit together or not at all.
func (s *Service) BuyTicket(ctx context.Context, principal auth.Principal, input BuyTicketInput) (*models.Ticket, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	if input.RaffleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	rate := input.PointsRate
	if rate.IsZero() {
		rate = s.defaultRate
	}
	if rate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points rate must be positive")
	}

	var ticket *models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		raffleRepo := s.raffles.WithTx(tx)
		raffle, err := raffleRepo.FindForUpdate(ctx, input.RaffleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "raffle not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load raffle")
		}
		if !raffle.Status.IsOpen() {
			return raffleNotOpen(raffle.Status)
		}
		if raffle.TicketsSold >= raffle.TicketsTotal {
			return soldOut()
		}

		user, err := s.users.WithTx(tx).FindByID(ctx, principal.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		if user.Status != enums.UserStatusActive {
			return pkgerrors.New(pkgerrors.CodeForbidden, "account is suspended")
		}

		ticketRepo := s.tickets.WithTx(tx)
		exists, err := ticketRepo.ExistsForUser(ctx, principal.UserID, raffle.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing ticket")
		}
		if exists {
			return duplicateTicket()
		}

		number, err := s.numbers.Next(s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate ticket number")
		}
		t := &models.Ticket{
			UserID:        principal.UserID,
			RaffleID:      raffle.ID,
			TicketNumber:  number,
			Status:        enums.TicketStatusActive,
			PaymentMethod: input.PaymentMethod,
		}
		switch input.PaymentMethod {
		case enums.PaymentMethodWallet:
			t.AmountPaid = raffle.TicketPrice
		case enums.PaymentMethodPoints:
			t.PointsPaid = PointsPrice(raffle.TicketPrice, rate)
		}

		if err := ticketRepo.Create(ctx, t); err != nil {
			if errors.Is(err, ErrDuplicateTicket) {
				return duplicateTicket()
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create ticket")
		}

		taken, err := raffleRepo.IncrementTicketsSold(ctx, raffle.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment tickets sold")
		}
		if !taken {
			return soldOut()
		}

		entry := wallet.Entry{
			Type:        enums.TransactionTypeTicketPurchase,
			Description: fmt.Sprintf("Ticket %s", number),
			Metadata: map[string]any{
				"raffle_id":      raffle.ID.String(),
				"ticket_id":      t.ID.String(),
				"ticket_number":  number,
				"payment_method": string(input.PaymentMethod),
			},
		}
		switch input.PaymentMethod {
		case enums.PaymentMethodWallet:
			_, err = s.wallet.DebitWallet(ctx, tx, principal.UserID, raffle.TicketPrice, entry)
		case enums.PaymentMethodPoints:
			price := raffle.TicketPrice
			entry.LoggedAmount = &price
			entry.Metadata["points_rate"] = rate.String()
			_, err = s.wallet.DebitPoints(ctx, tx, principal.UserID, t.PointsPaid, entry)
		}
		if err != nil {
			return err
		}

		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TicketPurchased(string(ticket.PaymentMethod))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"ticket_id":      ticket.ID.String(),
			"ticket_number":  ticket.TicketNumber,
			"raffle_id":      ticket.RaffleID.String(),
			"user_id":        ticket.UserID.String(),
			"payment_method": string(ticket.PaymentMethod),
		})
		s.logg.Info(logCtx, "ticket.purchased")
	}
	return ticket, nil
}

// ListByUser returns the principal's own tickets, newest first.
func (s *Service) ListByUser(ctx context.Context, principal auth.Principal) ([]models.Ticket, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	rows, err := s.tickets.ListByUser(ctx, principal.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list tickets")
	}
	return rows, nil
}

// ListByRaffle returns every ticket of a raffle in draw order. Admin only.
func (s *Service) ListByRaffle(ctx context.Context, principal auth.Principal, raffleID uuid.UUID) ([]models.Ticket, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	rows, err := s.tickets.ListByRaffle(ctx, raffleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list raffle tickets")
	}
	return rows, nil
}

func raffleNotOpen(status enums.RaffleStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "raffle is not open for ticket sales").
		WithDetails(map[string]any{"status": status}).
		WithReason(ReasonRaffleNotOpen)
}

func soldOut() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "raffle is sold out").WithReason(ReasonSoldOut)
}

func duplicateTicket() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "you already hold a ticket for this raffle").WithReason(ReasonDuplicateTicket)
}
