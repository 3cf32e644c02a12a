package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"traty/internal/core"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestMemoryStoreInsertAndSnapshot(t *testing.T) {
	s := New(WithClock(fixedClock(1000)))
	ctx := context.Background()

	a, err := s.Insert(ctx, core.Expense{Amount: decimal.NewFromInt(1200), Category: "Food", Date: "2025-11-01"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	b, err := s.Insert(ctx, core.Expense{Amount: decimal.NewFromInt(800), Category: "Transport", Date: "2025-11-02"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("unexpected ids: %d %d", a.ID, b.ID)
	}
	if a.Currency != core.RUB || a.CreatedAt != 1000 {
		t.Fatalf("defaults not applied: %+v", a)
	}

	snap, err := s.Snapshot(ctx, core.NoFilter())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// Same createdAt: higher id first
	if snap.Len() != 2 || snap.Expenses[0].ID != 2 {
		t.Fatalf("unexpected order: %+v", snap.Expenses)
	}
	if snap.Version != 2 {
		t.Fatalf("version = %d, want 2", snap.Version)
	}
}

func TestMemoryStoreMissingRows(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.Update(ctx, core.Expense{ID: 5})
	if err != nil || ok {
		t.Fatalf("update missing: ok=%v err=%v", ok, err)
	}
	ok, err = s.Delete(ctx, core.Expense{ID: 5})
	if err != nil || ok {
		t.Fatalf("delete missing: ok=%v err=%v", ok, err)
	}
	if s.Version() != 0 {
		t.Fatalf("missing rows must not bump the version")
	}
}

func TestMemoryStoreIDsNotReused(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, _ := s.Insert(ctx, core.Expense{Category: "Food", Date: "2025-11-01"})
	if _, err := s.Delete(ctx, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b, _ := s.Insert(ctx, core.Expense{Category: "Food", Date: "2025-11-01"})
	if b.ID <= a.ID {
		t.Fatalf("id reused: %d after %d", b.ID, a.ID)
	}

	if _, err := s.Insert(ctx, core.Expense{ID: b.ID}); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestMemoryStoreUnavailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SetUnavailable(errors.New("disk full"))

	if _, err := s.Insert(ctx, core.Expense{}); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.QueryAll(ctx); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("subscribe: %v", err)
	}

	s.SetUnavailable(nil)
	if _, err := s.Insert(ctx, core.Expense{}); err != nil {
		t.Fatalf("insert after recovery: %v", err)
	}
}

func TestMemoryStoreSubscriptionWakesOnAnyChange(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub, err := s.QueryByCategory(ctx, "Food")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	recv := func() core.Snapshot {
		t.Helper()
		select {
		case snap := <-sub.C():
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
		return core.Snapshot{}
	}

	if snap := recv(); snap.Len() != 0 {
		t.Fatalf("initial snapshot not empty")
	}
	if _, err := s.Insert(ctx, core.Expense{Category: "Transport", Date: "2025-11-02"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if snap := recv(); snap.Len() != 0 || snap.Version != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestMemoryStoreEmptyCategoryIsExact(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Insert(ctx, core.Expense{Category: "Food", Date: "2025-11-01"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	blank, err := s.Insert(ctx, core.Expense{Category: "", Date: "2025-11-02"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	snap, err := s.Snapshot(ctx, core.ByCategory(""))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Len() != 1 || snap.Expenses[0].ID != blank.ID {
		t.Fatalf("expected only the blank-category row, got %+v", snap.Expenses)
	}
}
