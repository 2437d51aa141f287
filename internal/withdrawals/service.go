package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/internal/wallet"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
	"github.com/angelmondragon/rafflepot-backend/pkg/money"
	"github.com/angelmondragon/rafflepot-backend/pkg/paystack"
)

const (
	ReasonBelowMinimum = "below_minimum"
	ReasonNotPending   = "withdrawal_not_pending"
)

// PayoutGateway sends approved withdrawals to the user's bank account.
type PayoutGateway interface {
	CreatePayoutRecipient(ctx context.Context, req paystack.RecipientRequest) (string, error)
	SendPayout(ctx context.Context, req paystack.TransferRequest) (*paystack.Transfer, error)
}

// RequestInput is a user's payout request.
type RequestInput struct {
	Amount        decimal.Decimal
	BankName      string
	BankCode      string
	AccountNumber string
	AccountName   string
}

type ServiceParams struct {
	DB          wallet.TxRunner
	Users       users.Repository
	Withdrawals Repository
	Ledger      ledger.Service
	Wallet      *wallet.Service
	Gateway     PayoutGateway
	MinAmount   decimal.Decimal
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service runs the withdrawal lifecycle. Funds leave the wallet when a
// request is made and come back through a REFUND entry when it is rejected
// or the payout fails.
type Service struct {
	db        wallet.TxRunner
	users     users.Repository
	repo      Repository
	ledger    ledger.Service
	wallet    *wallet.Service
	gateway   PayoutGateway
	minAmount decimal.Decimal
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.DB == nil || p.Users == nil || p.Withdrawals == nil || p.Ledger == nil || p.Wallet == nil {
		return nil, fmt.Errorf("withdrawals service: missing dependency")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("withdrawals service: payout gateway required")
	}
	if p.MinAmount.IsNegative() {
		return nil, fmt.Errorf("withdrawals service: minimum amount cannot be negative")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		db:        p.DB,
		users:     p.Users,
		repo:      p.Withdrawals,
		ledger:    p.Ledger,
		wallet:    p.Wallet,
		gateway:   p.Gateway,
		minAmount: p.MinAmount,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

// LedgerReference is the WITHDRAWAL transaction reference for a request. It
// doubles as the payout reference sent to the gateway.
func LedgerReference(id uuid.UUID) string {
	return "wd_" + strings.ReplaceAll(id.String(), "-", "")
}

// Request debits the wallet and records a PENDING withdrawal in one tx.
func (s *Service) Request(ctx context.Context, principal auth.Principal, input RequestInput) (*models.Withdrawal, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	input = input.normalize()
	if err := s.validate(input); err != nil {
		return nil, err
	}

	id := uuid.New()
	reference := LedgerReference(id)
	var created *models.Withdrawal
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
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

		txn, err := s.wallet.DebitWallet(ctx, tx, user.ID, input.Amount, wallet.Entry{
			Type:        enums.TransactionTypeWithdrawal,
			Status:      enums.TransactionStatusPending,
			Reference:   reference,
			Description: fmt.Sprintf("Withdrawal to %s %s", input.BankName, maskAccount(input.AccountNumber)),
			Metadata: map[string]any{
				"withdrawal_id": id.String(),
				"bank_name":     input.BankName,
				"bank_code":     input.BankCode,
				"account_last4": last4(input.AccountNumber),
			},
		})
		if err != nil {
			return err
		}

		w := &models.Withdrawal{
			ID:            id,
			UserID:        user.ID,
			Amount:        input.Amount,
			BankName:      input.BankName,
			BankCode:      input.BankCode,
			AccountNumber: input.AccountNumber,
			AccountName:   input.AccountName,
			Status:        enums.WithdrawalStatusPending,
			TransactionID: txn.ID,
		}
		if err := s.repo.WithTx(tx).Create(ctx, w); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create withdrawal")
		}
		created = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WithdrawalProcessed(string(enums.WithdrawalStatusPending))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"withdrawal_id": created.ID.String(),
			"user_id":       created.UserID.String(),
			"amount":        created.Amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "withdrawal.requested")
	}
	return created, nil
}

// Approve moves a PENDING request to APPROVED and sends the payout. The
// balance is untouched. When the gateway call fails the request stays
// APPROVED and approving it again retries the payout under the same
// reference.
func (s *Service) Approve(ctx context.Context, principal auth.Principal, id uuid.UUID) (*models.Withdrawal, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	var (
		w        *models.Withdrawal
		approved bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		switch current.Status {
		case enums.WithdrawalStatusApproved:
			w = current
			return nil
		case enums.WithdrawalStatusPending:
		default:
			return notPending(current.Status)
		}

		ok, err := repo.Transition(ctx, id, enums.WithdrawalStatusPending, enums.WithdrawalStatusApproved, s.processedFields(principal))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve withdrawal")
		}
		if !ok {
			return notPending(current.Status)
		}
		approved = true
		w, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if approved {
		s.metrics.WithdrawalProcessed(string(enums.WithdrawalStatusApproved))
	}

	if err := s.sendPayout(ctx, w); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "withdrawal_id", w.ID.String()), "withdrawal.payout_failed", err)
		}
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"withdrawal_id":    w.ID.String(),
			"payout_reference": LedgerReference(w.ID),
		})
		s.logg.Info(logCtx, "withdrawal.approved")
	}
	return w, nil
}

// Reject moves a PENDING request to REJECTED and refunds the amount in the
// same tx. Losing the race to an approval returns StateConflict and refunds
// nothing.
func (s *Service) Reject(ctx context.Context, principal auth.Principal, id uuid.UUID, reason string) (*models.Withdrawal, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}

	var w *models.Withdrawal
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		if current.Status != enums.WithdrawalStatusPending {
			return notPending(current.Status)
		}
		fields := s.processedFields(principal)
		fields["rejection_reason"] = reason
		if err := s.compensate(ctx, tx, current, enums.WithdrawalStatusPending, reason, fields); err != nil {
			return err
		}
		w, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WithdrawalProcessed(string(enums.WithdrawalStatusRejected))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"withdrawal_id": w.ID.String(),
			"reason":        reason,
		})
		s.logg.Info(logCtx, "withdrawal.rejected")
	}
	return w, nil
}

// MarkCompleted settles an APPROVED withdrawal once the gateway confirms the
// transfer. Replays are no-ops.
func (s *Service) MarkCompleted(ctx context.Context, payoutReference string) error {
	var applied bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		w, err := repo.FindByPayoutReference(ctx, payoutReference)
		if err != nil {
			return mapFindErr(err)
		}
		switch w.Status {
		case enums.WithdrawalStatusCompleted:
			return nil
		case enums.WithdrawalStatusApproved:
		default:
			return notApproved(w.Status)
		}

		ok, err := repo.Transition(ctx, w.ID, enums.WithdrawalStatusApproved, enums.WithdrawalStatusCompleted, map[string]any{
			"processed_at": s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete withdrawal")
		}
		if !ok {
			return notApproved(w.Status)
		}
		if _, err := s.ledger.WithTx(tx).Complete(ctx, LedgerReference(w.ID)); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		s.metrics.WithdrawalProcessed(string(enums.WithdrawalStatusCompleted))
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "payout_reference", payoutReference), "withdrawal.completed")
		}
	}
	return nil
}

// MarkFailed rejects an APPROVED withdrawal whose transfer failed or was
// reversed, refunding the wallet. Replays are no-ops.
func (s *Service) MarkFailed(ctx context.Context, payoutReference, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payout failed"
	}
	var applied bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		w, err := s.repo.WithTx(tx).FindByPayoutReference(ctx, payoutReference)
		if err != nil {
			return mapFindErr(err)
		}
		switch w.Status {
		case enums.WithdrawalStatusRejected:
			return nil
		case enums.WithdrawalStatusApproved:
		default:
			return notApproved(w.Status)
		}
		if err := s.compensate(ctx, tx, w, enums.WithdrawalStatusApproved, reason, map[string]any{
			"rejection_reason": reason,
			"processed_at":     s.now().UTC(),
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		s.metrics.WithdrawalProcessed(string(enums.WithdrawalStatusRejected))
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payout_reference": payoutReference,
				"reason":           reason,
			})
			s.logg.Warn(logCtx, "withdrawal.payout_reversed")
		}
	}
	return nil
}

// List returns the principal's own withdrawals, newest first.
func (s *Service) List(ctx context.Context, principal auth.Principal) ([]models.Withdrawal, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	rows, err := s.repo.ListByUser(ctx, principal.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list withdrawals")
	}
	return rows, nil
}

// ListPending is the admin review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, principal auth.Principal) ([]models.Withdrawal, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	rows, err := s.repo.ListByStatus(ctx, enums.WithdrawalStatusPending)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending withdrawals")
	}
	return rows, nil
}

// compensate is the single refund path: status CAS to REJECTED, REFUND entry,
// and the WITHDRAWAL transaction failed. Callers supply the tx.
func (s *Service) compensate(ctx context.Context, tx *gorm.DB, w *models.Withdrawal, from enums.WithdrawalStatus, reason string, fields map[string]any) error {
	ok, err := s.repo.WithTx(tx).Transition(ctx, w.ID, from, enums.WithdrawalStatusRejected, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject withdrawal")
	}
	if !ok {
		return notPending(w.Status)
	}

	reference := LedgerReference(w.ID)
	if _, err := s.wallet.RefundWallet(ctx, tx, w.UserID, w.Amount, wallet.Entry{
		Reference:   reference + "_refund",
		Description: "Withdrawal refund",
		Metadata: map[string]any{
			"withdrawal_id": w.ID.String(),
			"reason":        reason,
		},
	}); err != nil {
		return err
	}
	if _, err := s.ledger.WithTx(tx).Fail(ctx, reference, reason); err != nil {
		return err
	}
	return nil
}

func (s *Service) sendPayout(ctx context.Context, w *models.Withdrawal) error {
	minor, err := money.ToMinor(w.Amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "convert payout amount")
	}
	recipient, err := s.gateway.CreatePayoutRecipient(ctx, paystack.RecipientRequest{
		Name:          w.AccountName,
		AccountNumber: w.AccountNumber,
		BankCode:      w.BankCode,
	})
	if err != nil {
		return gatewayError(err, "create payout recipient")
	}

	// The reference is stored before the transfer so a fast webhook can
	// always find the row.
	reference := LedgerReference(w.ID)
	if err := s.repo.SetPayout(ctx, w.ID, recipient, reference); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payout reference")
	}
	w.RecipientCode = &recipient
	w.PayoutReference = &reference

	if _, err := s.gateway.SendPayout(ctx, paystack.TransferRequest{
		AmountMinor:   minor,
		RecipientCode: recipient,
		Reference:     reference,
		Reason:        "RafflePot withdrawal",
	}); err != nil {
		return gatewayError(err, "send payout")
	}
	return nil
}

func (s *Service) validate(input RequestInput) error {
	if !money.Valid(input.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive with at most two decimal places")
	}
	if input.Amount.LessThan(s.minAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("minimum withdrawal is %s", s.minAmount.StringFixed(2))).
			WithDetails(map[string]any{"minimum": s.minAmount.StringFixed(2)}).
			WithReason(ReasonBelowMinimum)
	}
	missing := make([]string, 0, 4)
	for field, value := range map[string]string{
		"bankName":      input.BankName,
		"bankCode":      input.BankCode,
		"accountNumber": input.AccountNumber,
		"accountName":   input.AccountName,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return pkgerrors.New(pkgerrors.CodeValidation, "bank details are incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func (s *Service) processedFields(principal auth.Principal) map[string]any {
	fields := map[string]any{"processed_at": s.now().UTC()}
	if principal.UserID != uuid.Nil {
		fields["processed_by"] = principal.UserID
	}
	return fields
}

func (in RequestInput) normalize() RequestInput {
	in.BankName = strings.TrimSpace(in.BankName)
	in.BankCode = strings.TrimSpace(in.BankCode)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	in.AccountName = strings.TrimSpace(in.AccountName)
	return in
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load withdrawal")
}

func notPending(status enums.WithdrawalStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("withdrawal is %s", status)).
		WithDetails(map[string]any{"status": status}).
		WithReason(ReasonNotPending)
}

func notApproved(status enums.WithdrawalStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("withdrawal is %s, not APPROVED", status)).
		WithDetails(map[string]any{"status": status})
}

func gatewayError(err error, op string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func last4(account string) string {
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}

func maskAccount(account string) string {
	return "****" + last4(account)
}
