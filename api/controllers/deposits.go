package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rafflepot-backend/api/responses"
	"github.com/angelmondragon/rafflepot-backend/api/validators"
	"github.com/angelmondragon/rafflepot-backend/internal/payments"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

type DepositService interface {
	InitiateDeposit(ctx context.Context, principal auth.Principal, amount decimal.Decimal) (*payments.DepositSession, error)
	VerifyDeposit(ctx context.Context, principal auth.Principal, reference string) (*payments.DepositResult, error)
}

type initiateDepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,amount"`
}

type depositStatusResponse struct {
	Transaction transactionDTO `json:"transaction"`
	Applied     bool           `json:"applied"`
}

// InitiateDeposit opens a gateway checkout session and a PENDING deposit.
func InitiateDeposit(svc DepositService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payments service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		var req initiateDepositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.InitiateDeposit(r.Context(), principal, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// VerifyDeposit re-checks a deposit with the gateway and settles it when paid.
func VerifyDeposit(svc DepositService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payments service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		reference := validators.CleanText(chi.URLParam(r, "reference"), 128)
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		result, err := svc.VerifyDeposit(r.Context(), principal, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result == nil || result.Transaction == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit result missing"))
			return
		}
		responses.WriteSuccess(w, depositStatusResponse{
			Transaction: newTransactionDTO(result.Transaction),
			Applied:     result.Applied,
		})
	}
}
