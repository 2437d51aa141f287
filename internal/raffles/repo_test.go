package raffles

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

func TestIncrementTicketsSold_ActivatesAndCapsCapacity(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	raffle, _ := dbtest.SeedRaffle(t, conn, dbtest.RaffleOpts{Price: decimal.NewFromInt(100), Capacity: 2})
	repo := NewRepository(conn)
	ctx := context.Background()

	ok, err := repo.IncrementTicketsSold(ctx, raffle.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got := dbtest.ReloadRaffle(t, conn, raffle.ID)
	assert.Equal(t, 1, got.TicketsSold)
	assert.Equal(t, enums.RaffleStatusActive, got.Status, "first sale must activate the raffle")

	ok, err = repo.IncrementTicketsSold(ctx, raffle.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IncrementTicketsSold(ctx, raffle.ID)
	require.NoError(t, err)
	assert.False(t, ok, "capacity reached")

	got = dbtest.ReloadRaffle(t, conn, raffle.ID)
	assert.Equal(t, 2, got.TicketsSold)
	assert.Equal(t, enums.RaffleStatusActive, got.Status)
}

func TestIncrementTicketsSold_RejectsClosedRaffle(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	raffle, _ := dbtest.SeedRaffle(t, conn, dbtest.RaffleOpts{Price: decimal.NewFromInt(100), Status: enums.RaffleStatusCancelled})

	ok, err := NewRepository(conn).IncrementTicketsSold(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComplete_IsCompareAndSet(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	raffle, item := dbtest.SeedRaffle(t, conn, dbtest.RaffleOpts{Price: decimal.NewFromInt(100), Status: enums.RaffleStatusActive})
	repo := NewRepository(conn)
	ctx := context.Background()

	outcome := Outcome{
		WinnerUserID:    uuid.New(),
		WinningTicketID: uuid.New(),
		DrawnAt:         time.Now().UTC(),
		DrawSeed:        "abc",
	}
	ok, err := repo.Complete(ctx, raffle.ID, outcome)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Complete(ctx, raffle.ID, Outcome{WinnerUserID: uuid.New(), WinningTicketID: uuid.New(), DrawnAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok, "second completion must lose")

	got := dbtest.ReloadRaffle(t, conn, raffle.ID)
	assert.Equal(t, enums.RaffleStatusCompleted, got.Status)
	require.NotNil(t, got.WinnerUserID)
	assert.Equal(t, outcome.WinnerUserID, *got.WinnerUserID)

	require.NoError(t, repo.MarkItemAwarded(ctx, item.ID))
	reloaded, err := repo.FindItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ItemStatusAwarded, reloaded.Status)
}
