package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
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
	referencePrefix = "dep_"
	reasonExpired   = "expired"
	// lateSuffix marks the entry that credits a charge paid after its
	// deposit expired.
	lateSuffix = "_late"
)

// Gateway is the charge half of the payment provider.
type Gateway interface {
	InitializeCharge(ctx context.Context, req paystack.ChargeRequest) (*paystack.Charge, error)
	VerifyCharge(ctx context.Context, reference string) (*paystack.Verification, error)
}

// TransferHandler closes out withdrawals when the provider reports a payout
// outcome.
type TransferHandler interface {
	MarkCompleted(ctx context.Context, payoutReference string) error
	MarkFailed(ctx context.Context, payoutReference, reason string) error
}

// DepositSession is what the client needs to send the user to checkout.
type DepositSession struct {
	AuthorizationURL string          `json:"authorizationUrl"`
	AccessCode       string          `json:"accessCode,omitempty"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
}

// DepositResult reports the deposit after a verify or webhook. Applied is
// true only for the call that moved it out of PENDING.
type DepositResult struct {
	Transaction *models.Transaction
	Applied     bool
}

// ReconcileSummary counts what a stale deposit sweep did.
type ReconcileSummary struct {
	Checked   int
	Completed int
	Failed    int
	Expired   int
}

type ServiceParams struct {
	Users     users.Repository
	Ledger    ledger.Service
	Wallet    *wallet.Service
	Gateway   Gateway
	Transfers TransferHandler
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Service runs the deposit lifecycle against the payment gateway.
type Service struct {
	users     users.Repository
	ledger    ledger.Service
	wallet    *wallet.Service
	gateway   Gateway
	transfers TransferHandler
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		users:     p.Users,
		ledger:    p.Ledger,
		wallet:    p.Wallet,
		gateway:   p.Gateway,
		transfers: p.Transfers,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

// InitiateDeposit opens a gateway checkout and records a PENDING deposit
// under the gateway reference. Nothing is written if the gateway refuses.
func (s *Service) InitiateDeposit(ctx context.Context, principal auth.Principal, amount decimal.Decimal) (*DepositSession, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	if !money.Valid(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive with at most two decimal places")
	}
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if user.Status != enums.UserStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is suspended")
	}

	minor, err := money.ToMinor(amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "convert amount")
	}
	reference := referencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	charge, err := s.gateway.InitializeCharge(ctx, paystack.ChargeRequest{
		Email:       user.Email,
		AmountMinor: minor,
		Reference:   reference,
		Metadata: map[string]any{
			"user_id":     user.ID.String(),
			"user_number": user.UserNumber,
		},
	})
	if err != nil {
		return nil, gatewayError(err, "initialize charge")
	}
	if charge.Reference != "" {
		reference = charge.Reference
	}

	if _, err := s.ledger.Record(ctx, ledger.RecordInput{
		UserID:      user.ID,
		Type:        enums.TransactionTypeDeposit,
		Amount:      amount,
		Status:      enums.TransactionStatusPending,
		Reference:   reference,
		Description: "Wallet deposit",
		Metadata: map[string]any{
			"gateway":     "paystack",
			"access_code": charge.AccessCode,
		},
	}); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"reference": reference,
			"user_id":   user.ID.String(),
			"amount":    amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "deposit.initiated")
	}
	return &DepositSession{
		AuthorizationURL: charge.AuthorizationURL,
		AccessCode:       charge.AccessCode,
		Reference:        reference,
		Amount:           amount,
	}, nil
}

// VerifyDeposit asks the gateway for the charge outcome and settles the
// deposit. Users may only verify their own deposits.
func (s *Service) VerifyDeposit(ctx context.Context, principal auth.Principal, reference string) (*DepositResult, error) {
	if !principal.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	txn, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Type != enums.TransactionTypeDeposit || (txn.UserID != principal.UserID && !principal.IsAdmin()) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.Status.IsTerminal() {
		return &DepositResult{Transaction: txn}, nil
	}

	verification, err := s.gateway.VerifyCharge(ctx, txn.ReferenceValue())
	if err != nil {
		return nil, gatewayError(err, "verify charge")
	}
	return s.settle(ctx, txn.ReferenceValue(), verification)
}

// HandleWebhook applies a verified provider event. Unknown references and
// unhandled event types are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, event *paystack.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	switch event.Event {
	case paystack.EventChargeSuccess:
		data, err := event.Charge()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		v := data.Verification()
		_, err = s.settle(ctx, v.Reference, &v)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			s.warn(ctx, "webhook.unknown_reference", v.Reference)
			return nil
		case pkgerrors.HasReason(err, wallet.ReasonAmountMismatch):
			// The deposit is FAILED with the mismatch recorded; redelivery
			// cannot change that.
			s.flag(ctx, "deposit.amount_mismatch", v.Reference, err)
			return nil
		}
		return err
	case paystack.EventTransferSuccess, paystack.EventTransferFailed, paystack.EventTransferReversed:
		if s.transfers == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "transfer handler not configured")
		}
		data, err := event.Transfer()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		if event.Event == paystack.EventTransferSuccess {
			err = s.transfers.MarkCompleted(ctx, data.Reference)
		} else {
			reason := data.Reason
			if reason == "" {
				reason = event.Event
			}
			err = s.transfers.MarkFailed(ctx, data.Reference, reason)
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.warn(ctx, "webhook.unknown_payout", data.Reference)
			return nil
		}
		return err
	default:
		return nil
	}
}

// ReconcileStale re-verifies PENDING deposits older than staleAfter. Charges
// the gateway reports as abandoned are failed once older than expireAfter;
// charges still in flight stay PENDING. Per-deposit errors are collected and
// the sweep continues.
func (s *Service) ReconcileStale(ctx context.Context, staleAfter, expireAfter time.Duration, limit int) (ReconcileSummary, error) {
	var summary ReconcileSummary
	now := s.now().UTC()
	pending, err := s.ledger.ListPendingBefore(ctx, enums.TransactionTypeDeposit, now.Add(-staleAfter), limit)
	if err != nil {
		return summary, err
	}

	var errs error
	for _, txn := range pending {
		if ctx.Err() != nil {
			return summary, multierr.Append(errs, ctx.Err())
		}
		summary.Checked++
		ref := txn.ReferenceValue()
		verification, verr := s.gateway.VerifyCharge(ctx, ref)
		if verr != nil {
			errs = multierr.Append(errs, fmt.Errorf("verify %s: %w", ref, verr))
			continue
		}
		result, serr := s.settle(ctx, ref, verification)
		if serr != nil && !pkgerrors.HasReason(serr, wallet.ReasonAmountMismatch) {
			errs = multierr.Append(errs, fmt.Errorf("settle %s: %w", ref, serr))
			continue
		}
		if result == nil || result.Transaction == nil {
			summary.Failed++
			continue
		}
		switch result.Transaction.Status {
		case enums.TransactionStatusCompleted:
			summary.Completed++
		case enums.TransactionStatusFailed:
			summary.Failed++
		case enums.TransactionStatusPending:
			if verification.Status == paystack.ChargeAbandoned && txn.CreatedAt.Before(now.Add(-expireAfter)) {
				if _, ferr := s.ledger.Fail(ctx, ref, reasonExpired); ferr != nil {
					errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", ref, ferr))
					continue
				}
				s.metrics.DepositSettled(string(enums.TransactionStatusFailed))
				summary.Expired++
			}
		}
	}
	return summary, errs
}

// settle is the single convergence point for verify, webhook and cron.
func (s *Service) settle(ctx context.Context, reference string, v *paystack.Verification) (*DepositResult, error) {
	switch v.Status {
	case paystack.ChargeSuccess:
		amount := money.FromMinor(v.AmountMinor)
		result, err := s.wallet.SettleDeposit(ctx, nil, reference, &amount)
		if err != nil {
			if pkgerrors.HasReason(err, wallet.ReasonAmountMismatch) {
				failed, ferr := s.ledger.Fail(ctx, reference, wallet.ReasonAmountMismatch)
				if ferr != nil {
					return nil, multierr.Append(err, ferr)
				}
				s.metrics.DepositSettled(string(enums.TransactionStatusFailed))
				return &DepositResult{Transaction: failed.Transaction, Applied: failed.Applied}, err
			}
			if pkgerrors.HasReason(err, ledger.ReasonAlreadyFinalized) {
				return s.settleLate(ctx, reference, amount)
			}
			return nil, err
		}
		if result.Applied {
			s.metrics.DepositSettled(string(enums.TransactionStatusCompleted))
		}
		return &DepositResult{Transaction: result.Transaction, Applied: result.Applied}, nil
	case paystack.ChargeFailed, paystack.ChargeReversed:
		reason := v.GatewayResponse
		if reason == "" {
			reason = v.Status
		}
		result, err := s.ledger.Fail(ctx, reference, reason)
		if err != nil {
			return nil, err
		}
		if result.Applied {
			s.metrics.DepositSettled(string(enums.TransactionStatusFailed))
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{"reference": reference, "reason": reason})
				s.logg.Info(logCtx, "deposit.failed")
			}
		}
		return &DepositResult{Transaction: result.Transaction, Applied: result.Applied}, nil
	default:
		// Still in flight at the gateway.
		txn, err := s.ledger.FindByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		return &DepositResult{Transaction: txn}, nil
	}
}

// settleLate handles a successful charge whose deposit is already FAILED. An
// expired deposit is credited through a separate COMPLETED entry under
// reference+"_late"; a deposit failed for any other reason is left for manual
// review. Either way the event is acknowledged.
func (s *Service) settleLate(ctx context.Context, reference string, amount decimal.Decimal) (*DepositResult, error) {
	original, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if original.Status != enums.TransactionStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("transaction %s is already %s", reference, original.Status))
	}
	if original.FailReason == nil || *original.FailReason != reasonExpired {
		s.flag(ctx, "deposit.paid_after_failure", reference,
			pkgerrors.New(pkgerrors.CodeStateConflict, "gateway settled a failed deposit"))
		return &DepositResult{Transaction: original}, nil
	}

	lateRef := reference + lateSuffix
	txn, err := s.wallet.CreditWallet(ctx, nil, original.UserID, amount, wallet.Entry{
		Type:        enums.TransactionTypeDeposit,
		Reference:   lateRef,
		Description: "Wallet deposit settled after expiry",
		Metadata: map[string]any{
			"gateway":            "paystack",
			"original_reference": reference,
		},
	})
	if err != nil {
		if pkgerrors.HasReason(err, ledger.ReasonDuplicateReference) {
			existing, ferr := s.ledger.FindByReference(ctx, lateRef)
			if ferr != nil {
				return nil, ferr
			}
			return &DepositResult{Transaction: existing}, nil
		}
		return nil, err
	}

	s.metrics.DepositSettled(string(enums.TransactionStatusCompleted))
	s.flag(ctx, "deposit.settled_after_expiry", reference, nil)
	return &DepositResult{Transaction: txn, Applied: true}, nil
}

// flag logs a deposit that needs an operator's attention. A nil cause logs at
// warn level.
func (s *Service) flag(ctx context.Context, msg, reference string, cause error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithField(ctx, "reference", reference)
	if cause == nil {
		s.logg.Warn(logCtx, msg)
		return
	}
	s.logg.Error(logCtx, msg, cause)
}

func (s *Service) warn(ctx context.Context, msg, reference string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "reference", reference), msg)
}

func gatewayError(err error, op string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
