package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
)

type fixture struct {
	svc    *Service
	conn   *gorm.DB
	ledger ledger.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	led, err := ledger.NewService(ledger.NewRepository(client.DB()))
	require.NoError(t, err)
	svc, err := NewService(client, users.NewRepository(client.DB()), led, nil)
	require.NoError(t, err)
	return fixture{svc: svc, conn: client.DB(), ledger: led}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestDebitWallet_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: dec(3000)})

	_, err := f.svc.DebitWallet(context.Background(), nil, user.ID, dec(5000), Entry{Type: enums.TransactionTypeTicketPurchase})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, typed.Code())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "5000.00", details["required"])
	assert.Equal(t, "3000.00", details["available"])
	assert.Equal(t, "2000.00", details["shortfall"])

	got := dbtest.ReloadUser(t, f.conn, user.ID)
	assert.True(t, got.WalletBalance.Equal(dec(3000)))
	assert.Zero(t, dbtest.CountRows(t, f.conn, &models.Transaction{}, "user_id = ?", user.ID))
}

func TestDebitWallet_RecordsEntryAtomically(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: dec(5000)})

	txn, err := f.svc.DebitWallet(context.Background(), nil, user.ID, dec(5000), Entry{
		Type:        enums.TransactionTypeTicketPurchase,
		Description: "ticket",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	assert.True(t, txn.Amount.Equal(dec(5000)))

	got := dbtest.ReloadUser(t, f.conn, user.ID)
	assert.True(t, got.WalletBalance.IsZero())
}

func TestBalanceNeverNegativeAcrossSequence(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: dec(100)})
	ctx := context.Background()

	ops := []struct {
		credit bool
		amount int64
		ok     bool
	}{
		{false, 60, true},
		{false, 60, false},
		{true, 30, true},
		{false, 70, true},
		{false, 1, false},
	}
	for i, op := range ops {
		var err error
		if op.credit {
			_, err = f.svc.CreditWallet(ctx, nil, user.ID, dec(op.amount), Entry{})
		} else {
			_, err = f.svc.DebitWallet(ctx, nil, user.ID, dec(op.amount), Entry{Type: enums.TransactionTypeWithdrawal, Status: enums.TransactionStatusPending})
		}
		if op.ok {
			require.NoError(t, err, "op %d", i)
		} else {
			require.Error(t, err, "op %d", i)
		}
		got := dbtest.ReloadUser(t, f.conn, user.ID)
		require.False(t, got.WalletBalance.IsNegative(), "op %d left negative balance", i)
	}
	got := dbtest.ReloadUser(t, f.conn, user.ID)
	assert.True(t, got.WalletBalance.IsZero(), "balance %s", got.WalletBalance)
}

func TestDebitPoints(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Points: 50000})
	price := dec(4000)

	txn, err := f.svc.DebitPoints(context.Background(), nil, user.ID, 40000, Entry{
		Type:         enums.TransactionTypeTicketPurchase,
		LoggedAmount: &price,
	})
	require.NoError(t, err)
	assert.True(t, txn.Amount.Equal(price))
	assert.JSONEq(t, `{"points":40000}`, string(txn.Metadata))

	_, err = f.svc.DebitPoints(context.Background(), nil, user.ID, 40000, Entry{Type: enums.TransactionTypeTicketPurchase})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientPoints), "got %v", err)

	got := dbtest.ReloadUser(t, f.conn, user.ID)
	assert.Equal(t, int64(10000), got.RafflePoints)
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: dec(10)})
	ctx := context.Background()

	_, err := f.svc.CreditWallet(ctx, nil, user.ID, dec(0), Entry{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreditWallet(ctx, nil, user.ID, decimal.RequireFromString("1.005"), Entry{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.DebitWallet(ctx, nil, user.ID, dec(1), Entry{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "debit without type")

	_, err = f.svc.DebitPoints(ctx, nil, user.ID, 0, Entry{Type: enums.TransactionTypeTicketPurchase})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreditWallet(ctx, nil, uuid.New(), dec(5), Entry{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSettleDeposit_CreditsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{})
	ctx := context.Background()

	_, err := f.ledger.Record(ctx, ledger.RecordInput{
		UserID:    user.ID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    dec(1000),
		Status:    enums.TransactionStatusPending,
		Reference: "dep_1",
	})
	require.NoError(t, err)

	amount := dec(1000)
	first, err := f.svc.SettleDeposit(ctx, nil, "dep_1", &amount)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := f.svc.SettleDeposit(ctx, nil, "dep_1", &amount)
	require.NoError(t, err)
	assert.False(t, second.Applied)

	got := dbtest.ReloadUser(t, f.conn, user.ID)
	assert.True(t, got.WalletBalance.Equal(dec(1000)), "balance %s", got.WalletBalance)
}

func TestSettleDeposit_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{})
	ctx := context.Background()

	_, err := f.ledger.Record(ctx, ledger.RecordInput{
		UserID:    user.ID,
		Type:      enums.TransactionTypeDeposit,
		Amount:    dec(1000),
		Status:    enums.TransactionStatusPending,
		Reference: "dep_2",
	})
	require.NoError(t, err)

	settled := dec(900)
	_, err = f.svc.SettleDeposit(ctx, nil, "dep_2", &settled)
	require.True(t, pkgerrors.HasReason(err, ReasonAmountMismatch), "got %v", err)

	got := dbtest.ReloadUser(t, f.conn, user.ID)
	assert.True(t, got.WalletBalance.IsZero())
}

func TestRefundWalletAndAwardPoints(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{})
	ctx := context.Background()

	txn, err := f.svc.RefundWallet(ctx, nil, user.ID, dec(250), Entry{Type: enums.TransactionTypeDeposit})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionTypeRefund, txn.Type, "refund type cannot be overridden")

	reward, err := f.svc.AwardPoints(ctx, user.ID, 500, "profile completed")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionTypeTaskReward, reward.Type)
	assert.True(t, reward.Amount.IsZero())

	bal, err := f.svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, bal.WalletBalance.Equal(dec(250)))
	assert.Equal(t, int64(500), bal.RafflePoints)
}

func TestTransactionsListsUserEntries(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: dec(10000)})
	ctx := context.Background()

	_, err := f.svc.DebitWallet(ctx, nil, user.ID, dec(1000), Entry{Type: enums.TransactionTypeTicketPurchase, Description: "first"})
	require.NoError(t, err)
	_, err = f.svc.AwardPoints(ctx, user.ID, 50, "second")
	require.NoError(t, err)

	rows, err := f.svc.Transactions(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	types := []enums.TransactionType{rows[0].Type, rows[1].Type}
	assert.ElementsMatch(t, []enums.TransactionType{enums.TransactionTypeTicketPurchase, enums.TransactionTypeTaskReward}, types)

	_, err = f.svc.Transactions(ctx, uuid.Nil, 10)
	require.Error(t, err)
}
