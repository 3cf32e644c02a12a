package viewstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traty/internal/adapters"
	"traty/internal/core"
	"traty/internal/live"
	"traty/internal/prefs"
	"traty/internal/storage/memory"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func newCoordinator(t *testing.T) (*Coordinator, *memory.Store, *prefs.MemoryStore) {
	t.Helper()
	store := memory.New()
	p := prefs.NewMemoryStore()
	c, err := New(context.Background(), adapters.NewRepository(store), p)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, store, p
}

func expense(amount int64, category, date string) core.Expense {
	return core.Expense{Amount: decimal.NewFromInt(amount), Category: category, Date: date}
}

func TestNewStartsEmpty(t *testing.T) {
	c, _, _ := newCoordinator(t)

	assert.Equal(t, core.NoFilter(), c.Filter())
	assert.Equal(t, 0, c.Filtered().Len())
	assert.Equal(t, 0, c.Unfiltered().Len())
	assert.True(t, c.Breakdown().Empty())
	assert.Empty(t, c.CustomCategories())
	assert.True(t, c.Total().IsZero())
}

func TestNewLoadsStoredCategories(t *testing.T) {
	p := prefs.NewMemoryStore()
	require.NoError(t, p.PutString(prefs.KeyCustomCategories, `["Travel"," Gifts ","Travel",""]`))

	c, err := New(context.Background(), adapters.NewRepository(memory.New()), p)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"Travel", "Gifts"}, c.CustomCategories())
}

func TestNewIgnoresMalformedCategories(t *testing.T) {
	p := prefs.NewMemoryStore()
	require.NoError(t, p.PutString(prefs.KeyCustomCategories, `{not json`))

	c, err := New(context.Background(), adapters.NewRepository(memory.New()), p)
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, c.CustomCategories())
}

func TestNewFailsWhenStorageUnavailable(t *testing.T) {
	store := memory.New()
	store.SetUnavailable(errors.New("disk gone"))

	_, err := New(context.Background(), adapters.NewRepository(store), prefs.NewMemoryStore())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestInsertReachesBothStreams(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := c.Insert(ctx, expense(500, core.CategoryFood, "2025-11-01"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return c.Filtered().Len() == 1 && c.Unfiltered().Len() == 1
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		return c.Breakdown().Len() == 1
	}, waitFor, tick)
	assert.True(t, c.Total().Equal(decimal.NewFromInt(500)))
}

func TestSetFilterSwapsFilteredStream(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	for _, e := range []core.Expense{
		expense(1700, core.CategoryFood, "2025-11-01"),
		expense(800, core.CategoryTransport, "2025-11-02"),
	} {
		_, err := c.Insert(ctx, e)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return c.Unfiltered().Len() == 2 }, waitFor, tick)

	require.NoError(t, c.SetFilter(ctx, core.ByCategory(core.CategoryTransport)))

	// The swap stores the new stream's first snapshot before returning.
	snap := c.Filtered()
	assert.Equal(t, core.ByCategory(core.CategoryTransport), snap.Filter)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, core.CategoryTransport, snap.Expenses[0].Category)
	assert.Equal(t, 2, c.Unfiltered().Len())

	bd := c.Breakdown()
	require.Equal(t, 1, bd.Len())
	assert.Equal(t, core.CategoryTransport, bd.Slices[0].Category)
}

func TestSetFilterLastWriteWins(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := c.Insert(ctx, expense(100, core.CategoryFood, "2025-11-01"))
	require.NoError(t, err)

	filters := []core.Filter{
		core.ByCategory(core.CategoryFood),
		core.ByCategory(core.CategoryTransport),
		core.ByDateRange("2025-01-01", "2025-12-31"),
		core.ByCategory(core.CategoryOther),
	}
	for _, f := range filters {
		require.NoError(t, c.SetFilter(ctx, f))
	}

	last := filters[len(filters)-1]
	assert.Equal(t, last, c.Filter())
	assert.Equal(t, last, c.Filtered().Filter)
	assert.Equal(t, 0, c.Filtered().Len())

	// Later changes still land on the final stream only.
	_, err = c.Insert(ctx, expense(50, core.CategoryOther, "2025-11-03"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		snap := c.Filtered()
		return snap.Filter == last && snap.Len() == 1
	}, waitFor, tick)
}

func TestSetFilterSameFilterTwice(t *testing.T) {
	c, store, _ := newCoordinator(t)
	ctx := context.Background()

	for _, e := range []core.Expense{
		expense(1700, core.CategoryFood, "2025-11-01"),
		expense(800, core.CategoryTransport, "2025-11-02"),
	} {
		_, err := c.Insert(ctx, e)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return c.Unfiltered().Len() == 2 }, waitFor, tick)

	food := core.ByCategory(core.CategoryFood)
	require.NoError(t, c.SetFilter(ctx, food))
	once := c.Filtered()
	onceBreakdown := c.Breakdown()

	require.NoError(t, c.SetFilter(ctx, food))

	assert.Equal(t, food, c.Filter())
	assert.Equal(t, once.Expenses, c.Filtered().Expenses)
	assert.Equal(t, food, c.Filtered().Filter)
	assert.Equal(t, onceBreakdown, c.Breakdown())
	// One unfiltered and one filtered subscription, nothing leaked by the swap.
	assert.Equal(t, 2, store.ActiveSubscriptions())
}

func TestSetFilterEmptyCategoryMeansAll(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	for _, e := range []core.Expense{
		expense(1700, core.CategoryFood, "2025-11-01"),
		expense(300, "", "2025-11-02"),
	} {
		_, err := c.Insert(ctx, e)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return c.Unfiltered().Len() == 2 }, waitFor, tick)

	require.NoError(t, c.SetFilter(ctx, core.ByCategory("")))

	assert.Equal(t, core.NoFilter(), c.Filter())
	assert.Equal(t, 2, c.Filtered().Len())
}

// flakyWatchRepo fails the next n Watch calls for the given filter kind.
type flakyWatchRepo struct {
	Repository

	mu   sync.Mutex
	kind core.FilterKind
	n    int
}

func (r *flakyWatchRepo) failNext(kind core.FilterKind, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kind, r.n = kind, n
}

func (r *flakyWatchRepo) Watch(ctx context.Context, filter core.Filter) (*live.Subscription, error) {
	r.mu.Lock()
	fail := r.n > 0 && filter.Kind == r.kind
	if fail {
		r.n--
	}
	r.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("watch %s: %w", filter.Key(), core.ErrStorageUnavailable)
	}
	return r.Repository.Watch(ctx, filter)
}

func TestSetFilterReopensUnfilteredAfterFailedRefresh(t *testing.T) {
	store := memory.New()
	repo := &flakyWatchRepo{Repository: adapters.NewRepository(store)}
	c, err := New(context.Background(), repo, prefs.NewMemoryStore())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	e, err := c.Insert(ctx, expense(500, core.CategoryFood, "2025-11-01"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Unfiltered().Len() == 1 }, waitFor, tick)

	repo.failNext(core.FilterNone, 1)
	deleted, err := c.Delete(ctx, e)
	assert.True(t, deleted)
	require.ErrorIs(t, err, core.ErrStorageUnavailable)

	require.NoError(t, c.SetFilter(ctx, core.ByCategory(core.CategoryFood)))
	assert.Equal(t, 0, c.Unfiltered().Len())
	assert.Equal(t, 2, store.ActiveSubscriptions())

	_, err = c.Insert(ctx, expense(250, core.CategoryTransport, "2025-11-02"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return c.Unfiltered().Len() == 1 }, waitFor, tick)
}

func TestSetFilterConcurrent(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cat := core.BuiltinCategories[i%len(core.BuiltinCategories)]
			assert.NoError(t, c.SetFilter(ctx, core.ByCategory(cat)))
		}(i)
	}
	wg.Wait()

	// Whatever won, the filter and the filtered stream agree.
	assert.Equal(t, c.Filter(), c.Filtered().Filter)
}

func TestApplyPeriod(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)

	_, err := c.Insert(ctx, expense(10, core.CategoryFood, "2025-11-10"))
	require.NoError(t, err)
	_, err = c.Insert(ctx, expense(20, core.CategoryFood, "2025-10-01"))
	require.NoError(t, err)

	require.NoError(t, c.ApplyPeriod(ctx, core.PeriodLast7Days, now))
	assert.Equal(t, core.ByDateRange("2025-11-08", "2025-11-15"), c.Filter())
	assert.Equal(t, 1, c.Filtered().Len())

	err = c.ApplyPeriod(ctx, core.Period("fortnight"), now)
	assert.ErrorIs(t, err, core.ErrUnknownPeriod)
	assert.Equal(t, core.ByDateRange("2025-11-08", "2025-11-15"), c.Filter())
}

func TestDeleteRefreshesStreams(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	stored, err := c.Insert(ctx, expense(300, core.CategoryUtilities, "2025-11-04"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Unfiltered().Len() == 1 }, waitFor, tick)

	deleted, err := c.Delete(ctx, stored)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Refresh is synchronous.
	assert.Equal(t, 0, c.Unfiltered().Len())
	assert.Equal(t, 0, c.Filtered().Len())
	assert.True(t, c.Breakdown().Empty())

	deleted, err = c.Delete(ctx, stored)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpdateDelegates(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	stored, err := c.Insert(ctx, expense(300, core.CategoryUtilities, "2025-11-04"))
	require.NoError(t, err)

	stored.Amount = decimal.NewFromInt(350)
	ok, err := c.Update(ctx, stored)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		snap := c.Unfiltered()
		return snap.Len() == 1 && snap.Expenses[0].Amount.Equal(decimal.NewFromInt(350))
	}, waitFor, tick)
}

func TestClearAll(t *testing.T) {
	c, store, _ := newCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Insert(ctx, expense(int64(i+1), core.CategoryOther, "2025-11-05"))
		require.NoError(t, err)
	}

	n, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, c.Unfiltered().Len())

	n, err = c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearAllCancelled(t *testing.T) {
	c, store, _ := newCoordinator(t)

	for i := 0; i < 3; i++ {
		_, err := c.Insert(context.Background(), expense(1, core.CategoryOther, "2025-11-05"))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := c.ClearAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Equal(t, 3, store.Len())
}

func TestCustomCategories(t *testing.T) {
	c, _, p := newCoordinator(t)

	assert.Equal(t, Persisted, c.AddCustomCategory(" Travel "))
	assert.Equal(t, Unchanged, c.AddCustomCategory("Travel"))
	assert.Equal(t, Unchanged, c.AddCustomCategory("   "))
	assert.Equal(t, Unchanged, c.AddCustomCategory(core.CategoryFood))
	assert.Equal(t, Persisted, c.AddCustomCategory("Gifts"))

	assert.Equal(t, []string{"Travel", "Gifts"}, c.CustomCategories())
	raw, err := p.GetString(prefs.KeyCustomCategories, "")
	require.NoError(t, err)
	assert.Equal(t, `["Travel","Gifts"]`, raw)

	all := c.AllCategories()
	assert.Equal(t, append(append([]string{}, core.BuiltinCategories...), "Travel", "Gifts"), all)

	assert.Equal(t, Unchanged, c.RemoveCustomCategory("Unknown"))
	assert.Equal(t, Persisted, c.RemoveCustomCategory("Travel"))
	assert.Equal(t, []string{"Gifts"}, c.CustomCategories())
}

func TestCustomCategoriesMemoryOnly(t *testing.T) {
	c, _, p := newCoordinator(t)
	p.FailWrites(errors.New("read-only"))

	res := c.AddCustomCategory("Travel")
	assert.Equal(t, MemoryOnly, res)
	assert.True(t, res.Changed())
	assert.Equal(t, []string{"Travel"}, c.CustomCategories())

	raw, err := p.GetString(prefs.KeyCustomCategories, "[]")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestCustomCategoriesCopy(t *testing.T) {
	c, _, _ := newCoordinator(t)
	c.AddCustomCategory("Travel")

	got := c.CustomCategories()
	got[0] = "mutated"
	assert.Equal(t, []string{"Travel"}, c.CustomCategories())
}

func TestWatchCustomCategories(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ch, stop := c.WatchCustomCategories()
	defer stop()

	assert.Empty(t, <-ch)
	c.AddCustomCategory("Travel")
	select {
	case got := <-ch:
		assert.Equal(t, []string{"Travel"}, got)
	case <-time.After(waitFor):
		t.Fatal("timed out")
	}
}

func TestLoadSampleData(t *testing.T) {
	c, store, _ := newCoordinator(t)
	ctx := context.Background()

	samples, err := SampleExpenses()
	require.NoError(t, err)

	n, err := c.LoadSampleData(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(samples), n)
	assert.Equal(t, len(samples), store.Len())

	// Only into an empty table.
	n, err = c.LoadSampleData(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, len(samples), store.Len())
}

func TestLoadSampleDataConcurrent(t *testing.T) {
	c, store, _ := newCoordinator(t)
	ctx := context.Background()

	samples, err := SampleExpenses()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.LoadSampleData(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, len(samples), store.Len())
}

func TestLoadSampleDataSkipsNonEmpty(t *testing.T) {
	c, store, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := c.Insert(ctx, expense(1, core.CategoryFood, "2025-11-01"))
	require.NoError(t, err)

	n, err := c.LoadSampleData(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.Len())
}

func TestWatchFilteredSeesLatest(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ch, stop := c.WatchFiltered()
	defer stop()

	first := <-ch
	assert.Equal(t, 0, first.Len())

	_, err := c.Insert(context.Background(), expense(5, core.CategoryFood, "2025-11-01"))
	require.NoError(t, err)

	deadline := time.After(waitFor)
	for {
		select {
		case snap := <-ch:
			if snap.Len() == 1 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for filtered snapshot")
		}
	}
}

func TestCloseStopsStreams(t *testing.T) {
	store := memory.New()
	c, err := New(context.Background(), adapters.NewRepository(store), prefs.NewMemoryStore())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.SetFilter(context.Background(), core.NoFilter()), ErrClosed)
	_, err = c.Delete(context.Background(), core.Expense{ID: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPersistResultString(t *testing.T) {
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "persisted", Persisted.String())
	assert.Equal(t, "memory_only", MemoryOnly.String())
	assert.Equal(t, "PersistResult(9)", PersistResult(9).String())
	assert.False(t, Unchanged.Changed())
}
