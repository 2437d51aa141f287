package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type counter struct {
	ID    uint `gorm:"primaryKey"`
	Value int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:repo_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&counter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Create(&[]counter{{ID: 1, Value: 5}, {ID: 2, Value: 5}}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return conn
}

func TestBaseDBCarriesContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	if got := base.DB(ctx).Statement.Context; got != ctx {
		t.Fatalf("expected context to flow through, got %v", got)
	}
	if base.DB(nil) != db {
		t.Fatalf("nil context should return the raw connection")
	}
}

func TestBaseRebind(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if got := base.Rebind(nil); got.db != db {
		t.Fatalf("nil tx should keep the original connection")
	}
	tx := db.Begin()
	defer tx.Rollback()
	if got := base.Rebind(tx); got.db != tx {
		t.Fatalf("expected rebind to use the transaction")
	}
}

func TestLockedReadsRow(t *testing.T) {
	base := NewBase(newTestDB(t))
	var row counter
	if err := base.Locked(context.Background()).First(&row, "id = ?", 1).Error; err != nil {
		t.Fatalf("locked read: %v", err)
	}
	if row.Value != 5 {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestSwappedDistinguishesLostRace(t *testing.T) {
	base := NewBase(newTestDB(t))
	ctx := context.Background()

	decrement := func() (bool, error) {
		return Swapped(base.DB(ctx).Model(&counter{}).
			Where("id = ? AND value >= ?", 1, 3).
			UpdateColumn("value", gorm.Expr("value - ?", 3)))
	}
	if ok, err := decrement(); err != nil || !ok {
		t.Fatalf("first decrement: ok=%v err=%v", ok, err)
	}
	if ok, err := decrement(); err != nil || ok {
		t.Fatalf("second decrement should miss the floor: ok=%v err=%v", ok, err)
	}

	if _, err := Swapped(base.DB(ctx).Table("missing_table").Where("id = 1").Update("value", 1)); err == nil {
		t.Fatalf("expected database error to surface")
	}
}

func TestCountedReportsBulkRows(t *testing.T) {
	base := NewBase(newTestDB(t))
	n, err := Counted(base.DB(context.Background()).Model(&counter{}).Where("value = ?", 5).Update("value", 0))
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows, got %d (%v)", n, err)
	}
}
