package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/rafflepot-backend/pkg/db"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
)

const (
	ReasonDuplicateReference = "duplicate_reference"
	ReasonAlreadyFinalized   = "transaction_finalized"

	defaultListLimit = 50
	maxListLimit     = 200
)

// Service records ledger transactions. It never checks business rules; the
// caller decides when an entry is written, and WithTx binds the write to the
// caller's atomic unit.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordInput) (*models.Transaction, error)
	Complete(ctx context.Context, reference string) (*TransitionResult, error)
	Fail(ctx context.Context, reference, reason string) (*TransitionResult, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
	ListPendingBefore(ctx context.Context, typ enums.TransactionType, before time.Time, limit int) ([]models.Transaction, error)
}

// RecordInput captures the immutable data a ledger entry requires.
type RecordInput struct {
	UserID      uuid.UUID
	Type        enums.TransactionType
	Amount      decimal.Decimal
	Status      enums.TransactionStatus
	Reference   string
	Description string
	Metadata    map[string]any
}

// TransitionResult reports the record after a PENDING flip. Applied is false
// when the record was already in the requested terminal state.
type TransitionResult struct {
	Transaction *models.Transaction
	Applied     bool
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.Transaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", input.Status))
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	txn := &models.Transaction{
		UserID: input.UserID,
		Type:   input.Type,
		Amount: input.Amount,
		Status: input.Status,
	}
	if ref := strings.TrimSpace(input.Reference); ref != "" {
		txn.Reference = &ref
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		txn.Description = &desc
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "metadata is not serialisable")
		}
		txn.Metadata = raw
	}

	if err := s.repo.Create(ctx, txn); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_transactions_reference") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction reference already recorded").
				WithReason(ReasonDuplicateReference)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record transaction")
	}
	return txn, nil
}

func (s *service) Complete(ctx context.Context, reference string) (*TransitionResult, error) {
	return s.transition(ctx, reference, enums.TransactionStatusCompleted, nil)
}

func (s *service) Fail(ctx context.Context, reference, reason string) (*TransitionResult, error) {
	var failReason *string
	if r := strings.TrimSpace(reason); r != "" {
		failReason = &r
	}
	return s.transition(ctx, reference, enums.TransactionStatusFailed, failReason)
}

func (s *service) transition(ctx context.Context, reference string, to enums.TransactionStatus, failReason *string) (*TransitionResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	applied, err := s.repo.TransitionByReference(ctx, reference, to, failReason)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition transaction")
	}

	txn, err := s.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if applied {
		return &TransitionResult{Transaction: txn, Applied: true}, nil
	}
	if txn.Status == to {
		return &TransitionResult{Transaction: txn, Applied: false}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("transaction %s is already %s", reference, txn.Status)).
		WithDetails(map[string]any{"status": txn.Status}).
		WithReason(ReasonAlreadyFinalized)
}

func (s *service) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	txn, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	return txn, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list transactions")
	}
	return rows, nil
}

func (s *service) ListPendingBefore(ctx context.Context, typ enums.TransactionType, before time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.repo.ListPendingBefore(ctx, typ, before, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending transactions")
	}
	return rows, nil
}
