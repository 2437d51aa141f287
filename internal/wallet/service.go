package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

const ReasonAmountMismatch = "amount_mismatch"

// TxRunner is the Ledger Store's transaction boundary.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Entry describes the ledger row written alongside a balance change.
type Entry struct {
	Type        enums.TransactionType
	Status      enums.TransactionStatus
	Reference   string
	Description string
	Metadata    map[string]any
	// LoggedAmount overrides the amount written to the ledger. Points debits
	// use it to record the currency price of what was bought.
	LoggedAmount *decimal.Decimal
}

// Balance is a user's spendable position.
type Balance struct {
	WalletBalance decimal.Decimal `json:"walletBalance"`
	RafflePoints  int64           `json:"rafflePoints"`
}

// Service owns every wallet balance and raffle points mutation. Methods that
// take a tx join the caller's atomic unit; a nil tx opens a fresh one.
type Service struct {
	db     TxRunner
	users  users.Repository
	ledger ledger.Service
	logg   *logger.Logger
}

func NewService(db TxRunner, usersRepo users.Repository, ledgerSvc ledger.Service, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &Service{db: db, users: usersRepo, ledger: ledgerSvc, logg: logg}, nil
}

func (s *Service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithTx(ctx, fn)
}

// CreditWallet increments the balance and records the entry (DEPOSIT unless set).
func (s *Service) CreditWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, entry Entry) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if entry.Type == "" {
		entry.Type = enums.TransactionTypeDeposit
	}
	var txn *models.Transaction
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).IncrementBalance(ctx, userID, amount); err != nil {
			return mapUserErr(err, "credit wallet")
		}
		var err error
		txn, err = s.record(ctx, tx, userID, amount, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// DebitWallet decrements the balance only if it covers amount. The check and
// the decrement are one conditional UPDATE.
func (s *Service) DebitWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, entry Entry) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !entry.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit requires a transaction type")
	}
	var txn *models.Transaction
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		if err := repo.DecrementBalance(ctx, userID, amount); err != nil {
			if errors.Is(err, users.ErrInsufficientFunds) {
				return s.insufficientFunds(ctx, repo, userID, amount)
			}
			return mapUserErr(err, "debit wallet")
		}
		var err error
		txn, err = s.record(ctx, tx, userID, amount, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// DebitPoints is DebitWallet for the raffle points balance.
func (s *Service) DebitPoints(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points int64, entry Entry) (*models.Transaction, error) {
	if points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be greater than zero")
	}
	if !entry.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit requires a transaction type")
	}
	entry.Metadata = withPoints(entry.Metadata, points)
	logged := decimal.Zero
	if entry.LoggedAmount != nil {
		logged = *entry.LoggedAmount
	}
	var txn *models.Transaction
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		if err := repo.DecrementPoints(ctx, userID, points); err != nil {
			if errors.Is(err, users.ErrInsufficientPoints) {
				return s.insufficientPoints(ctx, repo, userID, points)
			}
			return mapUserErr(err, "debit points")
		}
		var err error
		txn, err = s.record(ctx, tx, userID, logged, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// CreditPoints adds non-withdrawable raffle points (TASK_REWARD unless set).
func (s *Service) CreditPoints(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points int64, entry Entry) (*models.Transaction, error) {
	if points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be greater than zero")
	}
	if entry.Type == "" {
		entry.Type = enums.TransactionTypeTaskReward
	}
	entry.Metadata = withPoints(entry.Metadata, points)
	var txn *models.Transaction
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).IncrementPoints(ctx, userID, points); err != nil {
			return mapUserErr(err, "credit points")
		}
		var err error
		txn, err = s.record(ctx, tx, userID, decimal.Zero, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RefundWallet returns amount to the wallet with a REFUND entry. It must run in
// the same tx as the state change it compensates.
func (s *Service) RefundWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, entry Entry) (*models.Transaction, error) {
	entry.Type = enums.TransactionTypeRefund
	entry.Status = enums.TransactionStatusCompleted
	return s.CreditWallet(ctx, tx, userID, amount, entry)
}

// SettleDeposit flips the PENDING deposit keyed by reference to COMPLETED and
// credits the wallet, both only once. A repeated settlement returns
// Applied=false and leaves the balance alone. settledAmount, when non-nil, must
// equal the recorded amount.
func (s *Service) SettleDeposit(ctx context.Context, tx *gorm.DB, reference string, settledAmount *decimal.Decimal) (*ledger.TransitionResult, error) {
	var result *ledger.TransitionResult
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		led := s.ledger.WithTx(tx)
		pending, err := led.FindByReference(ctx, reference)
		if err != nil {
			return err
		}
		if pending.Type != enums.TransactionTypeDeposit {
			return pkgerrors.New(pkgerrors.CodeValidation, "reference does not identify a deposit")
		}
		if settledAmount != nil && pending.Status == enums.TransactionStatusPending && !settledAmount.Equal(pending.Amount) {
			return pkgerrors.New(pkgerrors.CodeDependency, "settled amount does not match deposit").
				WithDetails(map[string]any{
					"expected": pending.Amount.StringFixed(2),
					"settled":  settledAmount.StringFixed(2),
				}).
				WithReason(ReasonAmountMismatch)
		}

		result, err = led.Complete(ctx, reference)
		if err != nil {
			return err
		}
		if !result.Applied {
			return nil
		}
		if err := s.users.WithTx(tx).IncrementBalance(ctx, pending.UserID, pending.Amount); err != nil {
			return mapUserErr(err, "credit deposit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil && result.Applied {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"reference": reference,
			"user_id":   result.Transaction.UserID.String(),
			"amount":    result.Transaction.Amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "deposit.settled")
	}
	return result, nil
}

// AwardPoints credits task reward points in their own transaction.
func (s *Service) AwardPoints(ctx context.Context, userID uuid.UUID, points int64, description string) (*models.Transaction, error) {
	return s.CreditPoints(ctx, nil, userID, points, Entry{
		Type:        enums.TransactionTypeTaskReward,
		Description: description,
	})
}

func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err, "load balance")
	}
	return &Balance{WalletBalance: user.WalletBalance, RafflePoints: user.RafflePoints}, nil
}

// Transactions returns the user's most recent ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	return s.ledger.ListByUser(ctx, userID, limit)
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, entry Entry) (*models.Transaction, error) {
	status := entry.Status
	if status == "" {
		status = enums.TransactionStatusCompleted
	}
	return s.ledger.WithTx(tx).Record(ctx, ledger.RecordInput{
		UserID:      userID,
		Type:        entry.Type,
		Amount:      amount,
		Status:      status,
		Reference:   entry.Reference,
		Description: entry.Description,
		Metadata:    entry.Metadata,
	})
}

func (s *Service) insufficientFunds(ctx context.Context, repo users.Repository, userID uuid.UUID, required decimal.Decimal) error {
	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		return mapUserErr(err, "load balance")
	}
	shortfall := required.Sub(user.WalletBalance)
	return pkgerrors.New(pkgerrors.CodeInsufficientFunds,
		fmt.Sprintf("insufficient wallet balance: short by %s", shortfall.StringFixed(2))).
		WithDetails(map[string]any{
			"required":  required.StringFixed(2),
			"available": user.WalletBalance.StringFixed(2),
			"shortfall": shortfall.StringFixed(2),
		})
}

func (s *Service) insufficientPoints(ctx context.Context, repo users.Repository, userID uuid.UUID, required int64) error {
	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		return mapUserErr(err, "load points")
	}
	shortfall := required - user.RafflePoints
	return pkgerrors.New(pkgerrors.CodeInsufficientPoints,
		fmt.Sprintf("insufficient raffle points: short by %d", shortfall)).
		WithDetails(map[string]any{
			"required":  required,
			"available": user.RafflePoints,
			"shortfall": shortfall,
		})
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	return nil
}

func withPoints(metadata map[string]any, points int64) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["points"] = points
	return out
}

func mapUserErr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
