package withdrawals

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/internal/ledger"
	"github.com/angelmondragon/rafflepot-backend/internal/users"
	"github.com/angelmondragon/rafflepot-backend/internal/wallet"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/db"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/metrics"
	"github.com/angelmondragon/rafflepot-backend/pkg/paystack"
)

type fakePayouts struct {
	mu           sync.Mutex
	recipientErr error
	payoutErr    error
	transfers    []paystack.TransferRequest
}

func (f *fakePayouts) CreatePayoutRecipient(_ context.Context, req paystack.RecipientRequest) (string, error) {
	if f.recipientErr != nil {
		return "", f.recipientErr
	}
	return "RCP_" + req.AccountNumber, nil
}

func (f *fakePayouts) SendPayout(_ context.Context, req paystack.TransferRequest) (*paystack.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	if f.payoutErr != nil {
		return nil, f.payoutErr
	}
	return &paystack.Transfer{TransferCode: "TRF_1", Reference: req.Reference, Status: "pending"}, nil
}

type fixture struct {
	svc     *Service
	conn    *gorm.DB
	payouts *fakePayouts
	admin   auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return fixtureOn(t, dbtest.Open(t))
}

func fixtureOn(t *testing.T, client *db.Client) *fixture {
	t.Helper()
	conn := client.DB()
	usersRepo := users.NewRepository(conn)
	led, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(client, usersRepo, led, nil)
	require.NoError(t, err)

	admin := dbtest.SeedUser(t, conn, dbtest.UserOpts{Role: enums.UserRoleAdmin})
	f := &fixture{
		conn:    conn,
		payouts: &fakePayouts{},
		admin:   auth.Principal{UserID: admin.ID, Role: enums.UserRoleAdmin},
	}
	f.svc, err = NewService(ServiceParams{
		DB:          client,
		Users:       usersRepo,
		Withdrawals: NewRepository(conn),
		Ledger:      led,
		Wallet:      walletSvc,
		Gateway:     f.payouts,
		MinAmount:   decimal.NewFromInt(1000),
		Metrics:     metrics.NewLedgerMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) request(t *testing.T, user *models.User, amount int64) *models.Withdrawal {
	t.Helper()
	w, err := f.svc.Request(context.Background(), principalFor(user), validInput(amount))
	require.NoError(t, err)
	return w
}

func principalFor(u *models.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

func validInput(amount int64) RequestInput {
	return RequestInput{
		Amount:        decimal.NewFromInt(amount),
		BankName:      "Access Bank",
		BankCode:      "044",
		AccountNumber: "0123456789",
		AccountName:   "Ada Obi",
	}
}

func ledgerRow(t *testing.T, conn *gorm.DB, reference string) models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, conn.Where("reference = ?", reference).First(&txn).Error)
	return txn
}

func TestRequest_DebitsWalletAndRecordsPending(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})

	w := f.request(t, user, 2000)
	assert.Equal(t, enums.WithdrawalStatusPending, w.Status)
	assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(3000)))

	txn := ledgerRow(t, f.conn, LedgerReference(w.ID))
	assert.Equal(t, w.TransactionID, txn.ID)
	assert.Equal(t, enums.TransactionTypeWithdrawal, txn.Type)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	require.NotNil(t, txn.Description)
	assert.Equal(t, "Withdrawal to Access Bank ****6789", *txn.Description)
}

func TestRequest_Rejections(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(1500)})

	_, err := f.svc.Request(context.Background(), principalFor(user), validInput(500))
	assert.True(t, pkgerrors.HasReason(err, ReasonBelowMinimum))

	_, err = f.svc.Request(context.Background(), principalFor(user), validInput(2000))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	input := validInput(1200)
	input.AccountNumber = "  "
	_, err = f.svc.Request(context.Background(), principalFor(user), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Request(context.Background(), auth.Principal{}, validInput(1200))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	suspended := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000), Status: enums.UserStatusSuspended})
	_, err = f.svc.Request(context.Background(), principalFor(suspended), validInput(1200))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	assert.Zero(t, dbtest.CountRows(t, f.conn, &models.Withdrawal{}, ""))
	assert.Zero(t, dbtest.CountRows(t, f.conn, &models.Transaction{}, ""))
	assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(1500)))
}

func TestApprove_SendsPayoutAndLeavesBalance(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
	w := f.request(t, user, 2500)

	approved, err := f.svc.Approve(context.Background(), f.admin, w.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, approved.Status)
	require.NotNil(t, approved.PayoutReference)
	assert.Equal(t, LedgerReference(w.ID), *approved.PayoutReference)
	require.NotNil(t, approved.ProcessedBy)
	assert.Equal(t, f.admin.UserID, *approved.ProcessedBy)

	require.Len(t, f.payouts.transfers, 1)
	assert.Equal(t, int64(250000), f.payouts.transfers[0].AmountMinor)
	assert.Equal(t, "RCP_0123456789", f.payouts.transfers[0].RecipientCode)
	assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(2500)))
}

func TestApprove_PayoutFailureStaysApprovedAndRetries(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
	w := f.request(t, user, 2000)
	f.payouts.payoutErr = errors.New("bank unreachable")

	_, err := f.svc.Approve(context.Background(), f.admin, w.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var row models.Withdrawal
	require.NoError(t, f.conn.First(&row, "id = ?", w.ID).Error)
	assert.Equal(t, enums.WithdrawalStatusApproved, row.Status)

	f.payouts.payoutErr = nil
	_, err = f.svc.Approve(context.Background(), f.admin, w.ID)
	require.NoError(t, err)
	require.Len(t, f.payouts.transfers, 2)
	assert.Equal(t, f.payouts.transfers[0].Reference, f.payouts.transfers[1].Reference)
}

func TestRejectRefundsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
	w := f.request(t, user, 2000)

	rejected, err := f.svc.Reject(context.Background(), f.admin, w.ID, "name mismatch")
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "name mismatch", *rejected.RejectionReason)

	_, err = f.svc.Reject(context.Background(), f.admin, w.ID, "again")
	assert.True(t, pkgerrors.HasReason(err, ReasonNotPending))

	assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, enums.TransactionStatusFailed, ledgerRow(t, f.conn, LedgerReference(w.ID)).Status)
	refund := ledgerRow(t, f.conn, LedgerReference(w.ID)+"_refund")
	assert.Equal(t, enums.TransactionTypeRefund, refund.Type)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(2000)))
}

func TestApproveAndRejectAreMutuallyExclusive(t *testing.T) {
	t.Run("approve first", func(t *testing.T) {
		f := newFixture(t)
		user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
		w := f.request(t, user, 2000)

		_, err := f.svc.Approve(context.Background(), f.admin, w.ID)
		require.NoError(t, err)
		_, err = f.svc.Reject(context.Background(), f.admin, w.ID, "too late")
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
		assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(3000)))
		assert.Zero(t, dbtest.CountRows(t, f.conn, &models.Transaction{}, "type = ?", enums.TransactionTypeRefund))
	})

	t.Run("reject first", func(t *testing.T) {
		f := newFixture(t)
		user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
		w := f.request(t, user, 2000)

		_, err := f.svc.Reject(context.Background(), f.admin, w.ID, "fraud check")
		require.NoError(t, err)
		_, err = f.svc.Approve(context.Background(), f.admin, w.ID)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
		assert.Empty(t, f.payouts.transfers)
	})
}

func TestApproveRejectRaceHasOneOutcome(t *testing.T) {
	f := fixtureOn(t, dbtest.OpenFile(t))
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
	w := f.request(t, user, 2000)

	var (
		wg        sync.WaitGroup
		approvals atomic.Int32
		rejects   atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			var err error
			if approve {
				_, err = f.svc.Approve(context.Background(), f.admin, w.ID)
			} else {
				_, err = f.svc.Reject(context.Background(), f.admin, w.ID, "duplicate request")
			}
			if err != nil {
				assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), err)
				return
			}
			if approve {
				approvals.Add(1)
			} else {
				rejects.Add(1)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	got, err := NewRepository(f.conn).FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	refunds := dbtest.CountRows(t, f.conn, &models.Transaction{}, "type = ?", enums.TransactionTypeRefund)
	balance := dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance

	if rejects.Load() > 0 {
		assert.Equal(t, int32(1), rejects.Load())
		assert.Zero(t, approvals.Load())
		assert.Equal(t, enums.WithdrawalStatusRejected, got.Status)
		assert.Equal(t, int64(1), refunds)
		assert.True(t, balance.Equal(decimal.NewFromInt(5000)))
		assert.Empty(t, f.payouts.transfers)
		return
	}
	assert.Positive(t, approvals.Load())
	assert.Equal(t, enums.WithdrawalStatusApproved, got.Status)
	assert.Zero(t, refunds)
	assert.True(t, balance.Equal(decimal.NewFromInt(3000)))
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
	w := f.request(t, user, 2000)

	_, err := f.svc.Approve(context.Background(), principalFor(user), w.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.Reject(context.Background(), principalFor(user), w.ID, "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.ListPending(context.Background(), principalFor(user))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Approve(context.Background(), f.admin, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Reject(context.Background(), f.admin, w.ID, " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTransferWebhooks(t *testing.T) {
	ctx := context.Background()

	t.Run("success completes once", func(t *testing.T) {
		f := newFixture(t)
		user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
		w := f.request(t, user, 2000)
		_, err := f.svc.Approve(ctx, f.admin, w.ID)
		require.NoError(t, err)

		ref := LedgerReference(w.ID)
		require.NoError(t, f.svc.MarkCompleted(ctx, ref))
		require.NoError(t, f.svc.MarkCompleted(ctx, ref))

		var row models.Withdrawal
		require.NoError(t, f.conn.First(&row, "id = ?", w.ID).Error)
		assert.Equal(t, enums.WithdrawalStatusCompleted, row.Status)
		assert.Equal(t, enums.TransactionStatusCompleted, ledgerRow(t, f.conn, ref).Status)
		assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(3000)))
	})

	t.Run("failure refunds once", func(t *testing.T) {
		f := newFixture(t)
		user := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
		w := f.request(t, user, 2000)
		_, err := f.svc.Approve(ctx, f.admin, w.ID)
		require.NoError(t, err)

		ref := LedgerReference(w.ID)
		require.NoError(t, f.svc.MarkFailed(ctx, ref, "Account closed"))
		require.NoError(t, f.svc.MarkFailed(ctx, ref, "Account closed"))

		assert.True(t, dbtest.ReloadUser(t, f.conn, user.ID).WalletBalance.Equal(decimal.NewFromInt(5000)))
		assert.Equal(t, int64(1), dbtest.CountRows(t, f.conn, &models.Transaction{}, "type = ?", enums.TransactionTypeRefund))
		assert.Equal(t, enums.TransactionStatusFailed, ledgerRow(t, f.conn, ref).Status)

		err = f.svc.MarkCompleted(ctx, ref)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.MarkCompleted(ctx, "wd_missing")
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	})
}

func TestListAndListPending(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(10000)})
	bob := dbtest.SeedUser(t, f.conn, dbtest.UserOpts{Balance: decimal.NewFromInt(10000)})
	first := f.request(t, alice, 1000)
	f.request(t, alice, 1500)
	f.request(t, bob, 2000)
	_, err := f.svc.Reject(context.Background(), f.admin, first.ID, "duplicate")
	require.NoError(t, err)

	mine, err := f.svc.List(context.Background(), principalFor(alice))
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, w := range mine {
		assert.Equal(t, alice.ID, w.UserID)
	}

	pending, err := f.svc.ListPending(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
