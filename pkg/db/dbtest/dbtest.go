// Package dbtest opens throwaway sqlite databases with the full schema for
// repository and service tests.
package dbtest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/db"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Open returns a client over a fresh in-memory database, isolated per call.
func Open(t *testing.T) *db.Client {
	t.Helper()
	name := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	return open(t, name)
}

// OpenFile returns a client over a WAL database file under t.TempDir().
// Transactions begin IMMEDIATE and wait on the busy timeout, so tests may
// call services from many goroutines at once.
func OpenFile(t *testing.T) *db.Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rafflepot.db")
	return open(t, "file:"+path+"?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate")
}

func open(t *testing.T, dsn string) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	client := db.NewFromConn(conn)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type UserOpts struct {
	Balance decimal.Decimal
	Points  int64
	Role    enums.UserRole
	Status  enums.UserStatus
}

func SeedUser(t *testing.T, conn *gorm.DB, opts UserOpts) *models.User {
	t.Helper()
	id := uuid.New()
	if opts.Role == "" {
		opts.Role = enums.UserRoleUser
	}
	if opts.Status == "" {
		opts.Status = enums.UserStatusActive
	}
	user := &models.User{
		ID:            id,
		UserNumber:    "RP" + strings.ToUpper(id.String()[:8]),
		Email:         id.String() + "@example.com",
		FirstName:     "Test",
		LastName:      "User",
		WalletBalance: opts.Balance,
		RafflePoints:  opts.Points,
		Role:          opts.Role,
		Status:        opts.Status,
	}
	if err := conn.WithContext(context.Background()).Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

type RaffleOpts struct {
	Price     decimal.Decimal
	Capacity  int
	Status    enums.RaffleStatus
	ItemValue decimal.Decimal
}

// SeedRaffle creates an item and a raffle for it.
func SeedRaffle(t *testing.T, conn *gorm.DB, opts RaffleOpts) (*models.Raffle, *models.Item) {
	t.Helper()
	if opts.Capacity == 0 {
		opts.Capacity = 10
	}
	if opts.Status == "" {
		opts.Status = enums.RaffleStatusScheduled
	}
	if opts.ItemValue.IsZero() {
		opts.ItemValue = decimal.NewFromInt(250000)
	}
	item := &models.Item{Name: "Prize", Value: opts.ItemValue, Status: enums.ItemStatusActive}
	if err := conn.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	raffle := &models.Raffle{
		ItemID:       item.ID,
		TicketPrice:  opts.Price,
		TicketsTotal: opts.Capacity,
		RaffleDate:   time.Now().Add(24 * time.Hour).UTC(),
		Status:       opts.Status,
	}
	if err := conn.Create(raffle).Error; err != nil {
		t.Fatalf("seed raffle: %v", err)
	}
	return raffle, item
}

// ReloadUser reads the persisted user row.
func ReloadUser(t *testing.T, conn *gorm.DB, id uuid.UUID) models.User {
	t.Helper()
	var user models.User
	if err := conn.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return user
}

func ReloadRaffle(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Raffle {
	t.Helper()
	var raffle models.Raffle
	if err := conn.First(&raffle, "id = ?", id).Error; err != nil {
		t.Fatalf("reload raffle: %v", err)
	}
	return raffle
}

func CountRows(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}
