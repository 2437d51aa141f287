package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rafflepot-backend/api/responses"
	"github.com/angelmondragon/rafflepot-backend/api/validators"
	"github.com/angelmondragon/rafflepot-backend/internal/withdrawals"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

type WithdrawalService interface {
	Request(ctx context.Context, principal auth.Principal, input withdrawals.RequestInput) (*models.Withdrawal, error)
	List(ctx context.Context, principal auth.Principal) ([]models.Withdrawal, error)
}

type WithdrawalAdminService interface {
	ListPending(ctx context.Context, principal auth.Principal) ([]models.Withdrawal, error)
	Approve(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Withdrawal, error)
	Reject(ctx context.Context, principal auth.Principal, id uuid.UUID, reason string) (*models.Withdrawal, error)
}

type withdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required,amount"`
	BankName      string          `json:"bankName" validate:"required,max=120"`
	BankCode      string          `json:"bankCode" validate:"required,max=20"`
	AccountNumber string          `json:"accountNumber" validate:"required,min=6,max=20,numeric"`
	AccountName   string          `json:"accountName" validate:"required,max=120"`
}

func (r withdrawalRequest) toInput() withdrawals.RequestInput {
	return withdrawals.RequestInput{
		Amount:        r.Amount,
		BankName:      r.BankName,
		BankCode:      r.BankCode,
		AccountNumber: r.AccountNumber,
		AccountName:   r.AccountName,
	}
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RequestWithdrawal debits the caller's wallet and files a PENDING payout.
func RequestWithdrawal(svc WithdrawalService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "withdrawal service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		var req withdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		withdrawal, err := svc.Request(r.Context(), principal, req.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newWithdrawalDTO(withdrawal))
	}
}

func ListWithdrawals(svc WithdrawalService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "withdrawal service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.List(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWithdrawalDTOs(rows))
	}
}

func AdminListWithdrawals(svc WithdrawalAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "withdrawal service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.ListPending(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWithdrawalDTOs(rows))
	}
}

// AdminApproveWithdrawal approves a PENDING withdrawal and starts the payout.
func AdminApproveWithdrawal(svc WithdrawalAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "withdrawal service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		withdrawal, err := svc.Approve(r.Context(), principal, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWithdrawalDTO(withdrawal))
	}
}

// AdminRejectWithdrawal rejects a PENDING withdrawal and refunds the wallet.
func AdminRejectWithdrawal(svc WithdrawalAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "withdrawal service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rejectWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		withdrawal, err := svc.Reject(r.Context(), principal, id, validators.CleanText(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWithdrawalDTO(withdrawal))
	}
}
