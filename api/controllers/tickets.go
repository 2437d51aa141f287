package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/api/responses"
	"github.com/angelmondragon/rafflepot-backend/api/validators"
	"github.com/angelmondragon/rafflepot-backend/internal/tickets"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

type TicketService interface {
	BuyTicket(ctx context.Context, principal auth.Principal, input tickets.BuyTicketInput) (*models.Ticket, error)
	ListByUser(ctx context.Context, principal auth.Principal) ([]models.Ticket, error)
	ListByRaffle(ctx context.Context, principal auth.Principal, raffleID uuid.UUID) ([]models.Ticket, error)
}

type buyTicketRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required,payment_method"`
}

// BuyTicket purchases one ticket for the caller in the given raffle.
func BuyTicket(svc TicketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ticket service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		raffleID, err := validators.ParseUUIDParam(chi.URLParam(r, "raffleId"), "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req buyTicketRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method").WithDetails(map[string]any{"field": "paymentMethod"}))
			return
		}

		ticket, err := svc.BuyTicket(r.Context(), principal, tickets.BuyTicketInput{
			RaffleID:      raffleID,
			PaymentMethod: method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTicketDTO(ticket))
	}
}

func ListTickets(svc TicketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ticket service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.ListByUser(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketDTOs(rows))
	}
}

func AdminRaffleTickets(svc TicketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ticket service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		raffleID, err := validators.ParseUUIDParam(chi.URLParam(r, "raffleId"), "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByRaffle(r.Context(), principal, raffleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTicketDTOs(rows))
	}
}
