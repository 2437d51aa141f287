package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/api/responses"
	"github.com/angelmondragon/rafflepot-backend/api/validators"
	"github.com/angelmondragon/rafflepot-backend/internal/wallet"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

type WalletService interface {
	Balance(ctx context.Context, userID uuid.UUID) (*wallet.Balance, error)
	Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
}

type PointsAwarder interface {
	AwardPoints(ctx context.Context, userID uuid.UUID, points int64, description string) (*models.Transaction, error)
}

// WalletBalance returns the caller's wallet balance and raffle points.
func WalletBalance(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		balance, err := svc.Balance(r.Context(), principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

func WalletTransactions(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.Transactions(r.Context(), principal.UserID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionDTOs(rows))
	}
}

type awardPointsRequest struct {
	Points      int64  `json:"points" validate:"required,min=1,max=1000000"`
	Description string `json:"description" validate:"max=255"`
}

// AdminAwardPoints credits task reward points to a user.
func AdminAwardPoints(svc PointsAwarder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		if !principal.IsAdmin() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
			return
		}
		userID, err := validators.ParseUUIDParam(chi.URLParam(r, "userId"), "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req awardPointsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		description := validators.CleanText(req.Description, 255)
		if description == "" {
			description = "task reward"
		}

		txn, err := svc.AwardPoints(r.Context(), userID, req.Points, description)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionDTO(txn))
	}
}
