package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
)

type fakeRepository struct {
	createFn func(ctx context.Context, txn *models.Transaction) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	return nil
}

func (f *fakeRepository) TransitionByReference(context.Context, string, enums.TransactionStatus, *string) (bool, error) {
	return false, nil
}

func (f *fakeRepository) FindByReference(context.Context, string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListByUser(context.Context, uuid.UUID, int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeRepository) ListPendingBefore(context.Context, enums.TransactionType, time.Time, int) ([]models.Transaction, error) {
	return nil, nil
}

func TestService_Record(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	input := RecordInput{
		UserID:      uuid.New(),
		Type:        enums.TransactionTypeTicketPurchase,
		Amount:      decimal.NewFromInt(5000),
		Status:      enums.TransactionStatusCompleted,
		Reference:   "  ",
		Description: "Ticket TKT-1",
		Metadata:    map[string]any{"payment_method": "wallet"},
	}

	var created *models.Transaction
	repo.createFn = func(ctx context.Context, txn *models.Transaction) error {
		created = txn
		return nil
	}

	got, err := svc.Record(context.Background(), input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created == nil {
		t.Fatal("expected transaction to be created")
	}
	if created.UserID != input.UserID || created.Type != input.Type || !created.Amount.Equal(input.Amount) {
		t.Fatalf("unexpected transaction data: %+v", created)
	}
	if created.Reference != nil {
		t.Fatalf("blank reference should be stored as NULL, got %q", *created.Reference)
	}
	if created.Description == nil || *created.Description != "Ticket TKT-1" {
		t.Fatalf("description not preserved: %+v", created.Description)
	}
	if string(created.Metadata) != `{"payment_method":"wallet"}` {
		t.Fatalf("metadata mismatch: %s", created.Metadata)
	}
	if got != created {
		t.Fatalf("service should return created transaction")
	}
}

func TestService_RecordValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	valid := func() RecordInput {
		return RecordInput{
			UserID: uuid.New(),
			Type:   enums.TransactionTypeDeposit,
			Amount: decimal.NewFromInt(10),
			Status: enums.TransactionStatusPending,
		}
	}

	tests := []struct {
		name   string
		mutate func(in *RecordInput)
	}{
		{name: "missing user id", mutate: func(in *RecordInput) { in.UserID = uuid.Nil }},
		{name: "invalid type", mutate: func(in *RecordInput) { in.Type = "BONUS" }},
		{name: "invalid status", mutate: func(in *RecordInput) { in.Status = "SETTLED" }},
		{name: "negative amount", mutate: func(in *RecordInput) { in.Amount = decimal.NewFromInt(-1) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			_, err := svc.Record(context.Background(), in)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error for %s, got %v", tc.name, err)
			}
		})
	}
}

func TestService_RecordRepoError(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	expectedErr := errors.New("boom")
	repo.createFn = func(ctx context.Context, txn *models.Transaction) error {
		return expectedErr
	}

	_, err = svc.Record(context.Background(), RecordInput{
		UserID: uuid.New(),
		Type:   enums.TransactionTypeRefund,
		Amount: decimal.NewFromInt(100),
		Status: enums.TransactionStatusCompleted,
	})
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("storage failure should map to internal, got %v", err)
	}
}

func newSQLiteService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	return svc, client.DB()
}

func recordPendingDeposit(t *testing.T, svc Service, userID uuid.UUID, reference string) {
	t.Helper()
	_, err := svc.Record(context.Background(), RecordInput{
		UserID:    userID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    decimal.NewFromInt(1000),
		Status:    enums.TransactionStatusPending,
		Reference: reference,
	})
	require.NoError(t, err)
}

func TestService_CompleteIsIdempotent(t *testing.T) {
	svc, conn := newSQLiteService(t)
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{})
	recordPendingDeposit(t, svc, user.ID, "ref_1")
	ctx := context.Background()

	first, err := svc.Complete(ctx, "ref_1")
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, enums.TransactionStatusCompleted, first.Transaction.Status)

	second, err := svc.Complete(ctx, "ref_1")
	require.NoError(t, err)
	assert.False(t, second.Applied, "second completion must be a no-op")
	assert.Equal(t, enums.TransactionStatusCompleted, second.Transaction.Status)
}

func TestService_FailThenCompleteConflicts(t *testing.T) {
	svc, conn := newSQLiteService(t)
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{})
	recordPendingDeposit(t, svc, user.ID, "ref_2")
	ctx := context.Background()

	res, err := svc.Fail(ctx, "ref_2", "abandoned")
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.NotNil(t, res.Transaction.FailReason)
	assert.Equal(t, "abandoned", *res.Transaction.FailReason)

	_, err = svc.Complete(ctx, "ref_2")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.HasReason(err, ReasonAlreadyFinalized))
}

func TestService_CompleteUnknownReference(t *testing.T) {
	svc, _ := newSQLiteService(t)

	_, err := svc.Complete(context.Background(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestService_DuplicateReferenceRejected(t *testing.T) {
	svc, conn := newSQLiteService(t)
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{})
	recordPendingDeposit(t, svc, user.ID, "ref_dup")

	_, err := svc.Record(context.Background(), RecordInput{
		UserID:    user.ID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    decimal.NewFromInt(1000),
		Status:    enums.TransactionStatusPending,
		Reference: "ref_dup",
	})
	assert.True(t, pkgerrors.HasReason(err, ReasonDuplicateReference), "got %v", err)
}

func TestService_ListByUserNewestFirst(t *testing.T) {
	svc, conn := newSQLiteService(t)
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{})
	recordPendingDeposit(t, svc, user.ID, "ref_a")
	time.Sleep(5 * time.Millisecond)
	recordPendingDeposit(t, svc, user.ID, "ref_b")

	rows, err := svc.ListByUser(context.Background(), user.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ref_b", *rows[0].Reference)
}
