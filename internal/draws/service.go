package draws

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/raffles"
	"github.com/angelmondragon/rafflepot-backend/internal/tickets"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/payloads"
)

const (
	ReasonAlreadyFinalized = "already_finalized"
	ReasonRaffleCancelled  = "raffle_cancelled"
	ReasonNoTickets        = "no_tickets"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Emitter writes an event into the outbox as part of tx.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DrawResult describes a completed draw.
type DrawResult struct {
	RaffleID            uuid.UUID `json:"raffleId"`
	WinnerUserID        uuid.UUID `json:"winnerUserId"`
	WinningTicketID     uuid.UUID `json:"winningTicketId"`
	WinningTicketNumber string    `json:"winningTicketNumber"`
	TicketCount         int       `json:"ticketCount"`
	Index               int       `json:"index"`
	DrawnAt             time.Time `json:"drawnAt"`
	DrawSeed            string    `json:"drawSeed"`
}

type ServiceParams struct {
	DB      txRunner
	Raffles raffles.Repository
	Tickets tickets.Repository
	Ledger  ledger.Service
	Outbox  Emitter
	Picker  Picker
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

// Service runs raffle draws.
type Service struct {
	db      txRunner
	raffles raffles.Repository
	tickets tickets.Repository
	ledger  ledger.Service
	outbox  Emitter
	picker  Picker
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.DB == nil || p.Raffles == nil || p.Tickets == nil || p.Ledger == nil || p.Outbox == nil {
		return nil, fmt.Errorf("draws service: missing dependency")
	}
	if p.Picker == nil {
		p.Picker = CryptoPicker{}
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		db:      p.DB,
		raffles: p.Raffles,
		tickets: p.Tickets,
		ledger:  p.Ledger,
		outbox:  p.Outbox,
		picker:  p.Picker,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     p.Now,
	}, nil
}

// RunDraw picks one winner among the raffle's ACTIVE tickets and finalizes
// the raffle. Everything, including the winner notification event, commits in
// a single transaction; a raffle can be drawn at most once.
func (s *Service) RunDraw(ctx context.Context, principal auth.Principal, raffleID uuid.UUID) (*DrawResult, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if raffleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id is required")
	}

	var result *DrawResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		raffleRepo := s.raffles.WithTx(tx)
		raffle, err := raffleRepo.FindForUpdate(ctx, raffleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "raffle not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load raffle")
		}
		switch raffle.Status {
		case enums.RaffleStatusCompleted:
			return alreadyFinalized()
		case enums.RaffleStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "raffle was cancelled").WithReason(ReasonRaffleCancelled)
		}

		ticketRepo := s.tickets.WithTx(tx)
		entries, err := ticketRepo.ListActiveByRaffle(ctx, raffle.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list tickets")
		}
		if len(entries) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "raffle has no tickets").WithReason(ReasonNoTickets)
		}

		idx, err := s.picker.Pick(len(entries))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pick winner")
		}
		if idx < 0 || idx >= len(entries) {
			return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("picked index %d outside [0,%d)", idx, len(entries)))
		}
		winner := entries[idx]
		drawnAt := s.now().UTC()
		seed := DrawSeed(entries, idx)

		won, err := raffleRepo.Complete(ctx, raffle.ID, raffles.Outcome{
			WinnerUserID:    winner.UserID,
			WinningTicketID: winner.ID,
			DrawnAt:         drawnAt,
			DrawSeed:        seed,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete raffle")
		}
		if !won {
			return alreadyFinalized()
		}

		marked, err := ticketRepo.MarkWon(ctx, winner.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark winning ticket")
		}
		if marked != 1 {
			return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("expected 1 winning ticket, updated %d", marked))
		}
		lost, err := ticketRepo.MarkLostExcept(ctx, raffle.ID, winner.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark losing tickets")
		}
		if lost != int64(len(entries)-1) {
			return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("expected %d losing tickets, updated %d", len(entries)-1, lost))
		}

		item, err := raffleRepo.FindItem(ctx, raffle.ItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load prize item")
		}

		// RAFFLE_WIN records the prize value for the winner's history only;
		// no balance moves.
		if _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordInput{
			UserID:      winner.UserID,
			Type:        enums.TransactionTypeRaffleWin,
			Amount:      item.Value,
			Status:      enums.TransactionStatusCompleted,
			Reference:   "draw_" + raffle.ID.String(),
			Description: fmt.Sprintf("Won %s", item.Name),
			Metadata: map[string]any{
				"raffle_id":     raffle.ID.String(),
				"item_id":       item.ID.String(),
				"ticket_id":     winner.ID.String(),
				"ticket_number": winner.TicketNumber,
			},
		}); err != nil {
			if pkgerrors.HasReason(err, ledger.ReasonDuplicateReference) {
				return alreadyFinalized()
			}
			return err
		}

		if err := raffleRepo.MarkItemAwarded(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "award item")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRaffleDrawn,
			AggregateType: enums.AggregateRaffle,
			AggregateID:   raffle.ID,
			Actor:         &outbox.ActorRef{UserID: principal.UserID, Role: string(principal.Role)},
			Version:       1,
			OccurredAt:    drawnAt,
			Data: payloads.RaffleDrawnEvent{
				RaffleID:            raffle.ID,
				ItemID:              item.ID,
				ItemName:            item.Name,
				ItemValue:           item.Value,
				WinnerUserID:        winner.UserID,
				WinningTicketID:     winner.ID,
				WinningTicketNumber: winner.TicketNumber,
				TicketCount:         len(entries),
				DrawnAt:             drawnAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit raffle drawn event")
		}

		result = &DrawResult{
			RaffleID:            raffle.ID,
			WinnerUserID:        winner.UserID,
			WinningTicketID:     winner.ID,
			WinningTicketNumber: winner.TicketNumber,
			TicketCount:         len(entries),
			Index:               idx,
			DrawnAt:             drawnAt,
			DrawSeed:            seed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DrawCompleted()
	if s.logg != nil {
		logCtx := s.logg.WithRaffleID(ctx, result.RaffleID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"winner_user_id":    result.WinnerUserID.String(),
			"winning_ticket_id": result.WinningTicketID.String(),
			"ticket_count":      result.TicketCount,
			"draw_seed":         result.DrawSeed,
		})
		s.logg.Info(logCtx, "raffle.drawn")
	}
	return result, nil
}

// DrawSeed fingerprints the ordered candidate list and the chosen index so a
// draw can be audited after the fact.
func DrawSeed(entries []models.Ticket, index int) string {
	h := sha256.New()
	for _, t := range entries {
		h.Write([]byte(t.ID.String()))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))
}

func alreadyFinalized() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "raffle has already been drawn").WithReason(ReasonAlreadyFinalized)
}
