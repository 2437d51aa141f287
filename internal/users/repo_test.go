package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/dbtest"
)

func TestDecrementBalance(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{Balance: decimal.NewFromInt(5000)})
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.DecrementBalance(ctx, user.ID, decimal.NewFromInt(3000)))
	got := dbtest.ReloadUser(t, conn, user.ID)
	assert.True(t, got.WalletBalance.Equal(decimal.NewFromInt(2000)), "balance %s", got.WalletBalance)

	err := repo.DecrementBalance(ctx, user.ID, decimal.NewFromInt(2001))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	got = dbtest.ReloadUser(t, conn, user.ID)
	assert.True(t, got.WalletBalance.Equal(decimal.NewFromInt(2000)), "failed debit must not move balance")

	require.NoError(t, repo.DecrementBalance(ctx, user.ID, decimal.NewFromInt(2000)))
	got = dbtest.ReloadUser(t, conn, user.ID)
	assert.True(t, got.WalletBalance.IsZero())
}

func TestDecrementPoints(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{Points: 50000})
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.DecrementPoints(ctx, user.ID, 40000))
	require.ErrorIs(t, repo.DecrementPoints(ctx, user.ID, 10001), ErrInsufficientPoints)

	got := dbtest.ReloadUser(t, conn, user.ID)
	assert.Equal(t, int64(10000), got.RafflePoints)
}

func TestIncrementBalanceAndPoints(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{})
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.IncrementBalance(ctx, user.ID, decimal.NewFromInt(1000)))
	require.NoError(t, repo.IncrementPoints(ctx, user.ID, 25))

	got := dbtest.ReloadUser(t, conn, user.ID)
	assert.True(t, got.WalletBalance.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(25), got.RafflePoints)

	err := repo.IncrementBalance(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestWithTxRollsBackDebit(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	user := dbtest.SeedUser(t, conn, dbtest.UserOpts{Balance: decimal.NewFromInt(100)})
	repo := NewRepository(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := repo.WithTx(tx).DecrementBalance(context.Background(), user.ID, decimal.NewFromInt(100)); err != nil {
			return err
		}
		return errors.New("later step failed")
	})
	require.Error(t, err)

	got := dbtest.ReloadUser(t, conn, user.ID)
	assert.True(t, got.WalletBalance.Equal(decimal.NewFromInt(100)))
}
