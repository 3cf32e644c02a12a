// Package viewstate holds the state screens observe: the active filter, the
// filtered and unfiltered expense streams, the chart breakdown of the filtered
// stream and the user's custom categories.
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"traty/internal/chart"
	"traty/internal/core"
	"traty/internal/live"
	"traty/internal/log"
	"traty/internal/prefs"
)

// ErrClosed is returned by operations on a closed coordinator.
var ErrClosed = errors.New("viewstate: coordinator closed")

// Repository is what the coordinator needs from the repository facade.
type Repository interface {
	InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) (bool, error)
	DeleteExpense(ctx context.Context, e core.Expense) (bool, error)
	Watch(ctx context.Context, filter core.Filter) (*live.Subscription, error)
	Snapshot(ctx context.Context, filter core.Filter) (core.Snapshot, error)
}

// PersistResult reports what happened to a custom category change.
type PersistResult int

const (
	// Unchanged: the list already had (or lacked) the name; nothing was written.
	Unchanged PersistResult = iota
	// Persisted: the list changed and was written.
	Persisted
	// MemoryOnly: the list changed but the write failed; it lasts until restart.
	MemoryOnly
)

func (r PersistResult) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Persisted:
		return "persisted"
	case MemoryOnly:
		return "memory_only"
	default:
		return fmt.Sprintf("PersistResult(%d)", int(r))
	}
}

// Changed reports whether the in-memory list changed.
func (r PersistResult) Changed() bool {
	return r != Unchanged
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator owns the live subscriptions behind each observable value. All
// methods are safe for concurrent use.
type Coordinator struct {
	repo   Repository
	prefs  prefs.Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// subMu serializes subscription swaps so the last SetFilter wins.
	subMu      sync.Mutex
	filteredP  *pump
	unfiltered *pump
	closed     bool

	// catMu serializes category edits with their writes.
	catMu sync.Mutex

	filter     *live.Value[core.Filter]
	filteredV  *live.Value[core.Snapshot]
	allV       *live.Value[core.Snapshot]
	breakdownV *live.Value[chart.Breakdown]
	categories *live.Value[[]string]

	sample singleflight.Group
}

// New loads the custom categories and opens the unfiltered stream and the
// filtered stream with no filter. Both streams hold their first snapshot
// before New returns.
func New(ctx context.Context, repo Repository, store prefs.Store, opts ...Option) (*Coordinator, error) {
	lifetime, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		repo:       repo,
		prefs:      store,
		logger:     slog.Default(),
		ctx:        lifetime,
		cancel:     cancel,
		filter:     live.NewValue(core.NoFilter()),
		filteredV:  live.NewValue(core.Snapshot{Filter: core.NoFilter()}),
		allV:       live.NewValue(core.Snapshot{Filter: core.NoFilter()}),
		breakdownV: live.NewValue(chart.Aggregate(nil)),
		categories: live.NewValue([]string{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(log.FieldComponent, log.ComponentViewState)

	c.categories.Store(c.loadCategories())

	if err := ctx.Err(); err != nil {
		cancel()
		return nil, err
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if err := c.openUnfilteredLocked(); err != nil {
		cancel()
		return nil, err
	}
	if err := c.openFilteredLocked(core.NoFilter()); err != nil {
		c.unfiltered.stop()
		cancel()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) loadCategories() []string {
	if c.prefs == nil {
		return []string{}
	}
	raw, err := c.prefs.GetString(prefs.KeyCustomCategories, "[]")
	if err != nil {
		c.logger.Warn("Failed to read custom categories, starting empty", log.FieldError, err)
		return []string{}
	}
	return prefs.DecodeCategories(raw)
}

// pump forwards one subscription's snapshots into a value holder.
type pump struct {
	sub  *live.Subscription
	done chan struct{}
}

func (p *pump) stop() {
	p.sub.Cancel()
	<-p.done
}

func (c *Coordinator) startPump(sub *live.Subscription, deliver func(core.Snapshot)) (*pump, error) {
	// The first snapshot is stored synchronously so callers observe the new
	// stream as soon as the swap returns.
	select {
	case snap, ok := <-sub.C():
		if !ok {
			err := sub.Err()
			if err == nil {
				err = ErrClosed
			}
			return nil, err
		}
		deliver(snap)
	case <-c.ctx.Done():
		sub.Cancel()
		return nil, ErrClosed
	}

	p := &pump{sub: sub, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for snap := range sub.C() {
			deliver(snap)
		}
		if err := sub.Err(); err != nil {
			c.logger.Error("Live stream ended",
				log.FieldFilter, sub.Filter().Key(),
				log.FieldError, err)
		}
	}()
	return p, nil
}

func (c *Coordinator) openUnfilteredLocked() error {
	sub, err := c.repo.Watch(c.ctx, core.NoFilter())
	if err != nil {
		return fmt.Errorf("open unfiltered stream: %w", err)
	}
	p, err := c.startPump(sub, c.allV.Store)
	if err != nil {
		return fmt.Errorf("open unfiltered stream: %w", err)
	}
	c.unfiltered = p
	return nil
}

func (c *Coordinator) openFilteredLocked(filter core.Filter) error {
	sub, err := c.repo.Watch(c.ctx, filter)
	if err != nil {
		return fmt.Errorf("open %s stream: %w", filter.Key(), err)
	}
	p, err := c.startPump(sub, func(snap core.Snapshot) {
		c.filteredV.Store(snap)
		c.breakdownV.Store(chart.Aggregate(snap.Expenses))
	})
	if err != nil {
		return fmt.Errorf("open %s stream: %w", filter.Key(), err)
	}
	c.filteredP = p
	c.filter.Store(filter)
	return nil
}

// SetFilter replaces the filtered stream. The previous subscription is fully
// stopped before the new one opens, so no stale snapshot lands afterwards.
// An empty category selection means no filter. A missing unfiltered stream,
// left behind by a failed refresh, is reopened as well.
func (c *Coordinator) SetFilter(ctx context.Context, filter core.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filter = filter.Selection()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if c.unfiltered == nil {
		if err := c.openUnfilteredLocked(); err != nil {
			return err
		}
	}
	if c.filteredP != nil {
		c.filteredP.stop()
		c.filteredP = nil
	}
	if err := c.openFilteredLocked(filter); err != nil {
		return err
	}

	c.logger.DebugContext(ctx, "Filter changed", log.FieldFilter, filter.Key())
	return nil
}

// ApplyPeriod sets a date-range filter covering period relative to now.
func (c *Coordinator) ApplyPeriod(ctx context.Context, period core.Period, now time.Time) error {
	filter, err := period.Filter(now)
	if err != nil {
		return err
	}
	return c.SetFilter(ctx, filter)
}

// refresh re-opens both streams with the current filter.
func (c *Coordinator) refresh(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return ErrClosed
	}

	filter := c.filter.Load()
	if c.unfiltered != nil {
		c.unfiltered.stop()
		c.unfiltered = nil
	}
	if c.filteredP != nil {
		c.filteredP.stop()
		c.filteredP = nil
	}
	// Either stream may fail on its own; the other still reopens and the
	// next SetFilter retries whichever is missing.
	if err := errors.Join(c.openUnfilteredLocked(), c.openFilteredLocked(filter)); err != nil {
		c.logger.WarnContext(ctx, "Stream refresh incomplete",
			log.FieldFilter, filter.Key(),
			log.FieldError, err)
		return err
	}
	c.logger.DebugContext(ctx, "Streams refreshed", log.FieldFilter, filter.Key())
	return nil
}

func (c *Coordinator) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	return c.repo.InsertExpense(ctx, e)
}

func (c *Coordinator) Update(ctx context.Context, e core.Expense) (bool, error) {
	return c.repo.UpdateExpense(ctx, e)
}

// Delete removes e and then re-opens both streams.
func (c *Coordinator) Delete(ctx context.Context, e core.Expense) (bool, error) {
	deleted, err := c.repo.DeleteExpense(ctx, e)
	if err != nil {
		return false, err
	}
	if err := c.refresh(ctx); err != nil {
		return deleted, fmt.Errorf("refresh after delete: %w", err)
	}
	return deleted, nil
}

// ClearAll deletes every expense present when it starts, one by one. It is
// not atomic: a cancelled ctx stops between deletes and the count removed so
// far is returned with ctx's error, and rows inserted meanwhile may survive.
func (c *Coordinator) ClearAll(ctx context.Context) (int, error) {
	snap, err := c.repo.Snapshot(ctx, core.NoFilter())
	if err != nil {
		return 0, fmt.Errorf("clear all: %w", err)
	}

	deleted := 0
	for _, e := range snap.Expenses {
		if err := ctx.Err(); err != nil {
			c.logger.WarnContext(ctx, "Clear interrupted",
				log.FieldOperation, log.OpClear,
				log.FieldCount, deleted)
			return deleted, err
		}
		ok, err := c.repo.DeleteExpense(ctx, e)
		if err != nil {
			return deleted, fmt.Errorf("clear all: %w", err)
		}
		if ok {
			deleted++
		}
	}

	if err := c.refresh(ctx); err != nil {
		return deleted, fmt.Errorf("refresh after clear: %w", err)
	}
	c.logger.InfoContext(ctx, "Cleared expenses",
		log.FieldOperation, log.OpClear,
		log.FieldCount, deleted)
	return deleted, nil
}

// LoadSampleData inserts the demonstration dataset when the table is empty
// and returns how many rows it inserted. Concurrent calls share one run.
func (c *Coordinator) LoadSampleData(ctx context.Context) (int, error) {
	v, err, shared := c.sample.Do("sample", func() (any, error) {
		snap, err := c.repo.Snapshot(ctx, core.NoFilter())
		if err != nil {
			return 0, fmt.Errorf("check for existing data: %w", err)
		}
		if snap.Len() > 0 {
			return 0, nil
		}

		samples, err := SampleExpenses()
		if err != nil {
			return 0, err
		}
		n := 0
		for _, e := range samples {
			if _, err := c.repo.InsertExpense(ctx, e); err != nil {
				return n, fmt.Errorf("insert sample: %w", err)
			}
			n++
		}
		c.logger.InfoContext(ctx, "Loaded sample data", log.FieldCount, n)
		return n, nil
	})
	if shared {
		c.logger.DebugContext(ctx, "Sample load shared with a concurrent call")
	}
	return v.(int), err
}

// AddCustomCategory appends name to the custom categories and persists the
// list. Blank names, built-in names and names already present are Unchanged.
func (c *Coordinator) AddCustomCategory(name string) PersistResult {
	name = strings.TrimSpace(name)
	if name == "" || core.IsBuiltinCategory(name) {
		return Unchanged
	}

	c.catMu.Lock()
	defer c.catMu.Unlock()

	current := c.categories.Load()
	for _, existing := range current {
		if existing == name {
			return Unchanged
		}
	}
	next := append(append(make([]string, 0, len(current)+1), current...), name)
	return c.persistCategoriesLocked(next)
}

// RemoveCustomCategory drops name from the custom categories and persists
// the list. Unknown names are Unchanged.
func (c *Coordinator) RemoveCustomCategory(name string) PersistResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return Unchanged
	}

	c.catMu.Lock()
	defer c.catMu.Unlock()

	current := c.categories.Load()
	next := make([]string, 0, len(current))
	for _, existing := range current {
		if existing != name {
			next = append(next, existing)
		}
	}
	if len(next) == len(current) {
		return Unchanged
	}
	return c.persistCategoriesLocked(next)
}

func (c *Coordinator) persistCategoriesLocked(next []string) PersistResult {
	c.categories.Store(next)

	if c.prefs == nil {
		return MemoryOnly
	}
	raw, err := prefs.EncodeCategories(next)
	if err == nil {
		err = c.prefs.PutString(prefs.KeyCustomCategories, raw)
	}
	if err != nil {
		c.logger.Warn("Failed to persist custom categories, keeping in memory",
			log.FieldOperation, log.OpPersist,
			log.FieldCount, len(next),
			log.FieldError, err)
		return MemoryOnly
	}
	return Persisted
}

// AllCategories returns the built-in categories followed by the custom ones.
func (c *Coordinator) AllCategories() []string {
	custom := c.categories.Load()
	out := make([]string, 0, len(core.BuiltinCategories)+len(custom))
	out = append(out, core.BuiltinCategories...)
	return append(out, custom...)
}

// CustomCategories returns a copy of the custom category list.
func (c *Coordinator) CustomCategories() []string {
	return append([]string(nil), c.categories.Load()...)
}

func (c *Coordinator) Filter() core.Filter {
	return c.filter.Load()
}

// Filtered returns the latest snapshot of the filtered stream.
func (c *Coordinator) Filtered() core.Snapshot {
	return c.filteredV.Load().Clone()
}

// Unfiltered returns the latest snapshot of every expense.
func (c *Coordinator) Unfiltered() core.Snapshot {
	return c.allV.Load().Clone()
}

// Breakdown returns the chart model of the filtered stream.
func (c *Coordinator) Breakdown() chart.Breakdown {
	return c.breakdownV.Load()
}

// Total sums the filtered stream, currency-blind.
func (c *Coordinator) Total() decimal.Decimal {
	return c.filteredV.Load().Total()
}

// WatchFiltered streams filtered snapshots, latest value first. Call the
// returned func to stop.
func (c *Coordinator) WatchFiltered() (<-chan core.Snapshot, func()) {
	return c.filteredV.Watch()
}

func (c *Coordinator) WatchUnfiltered() (<-chan core.Snapshot, func()) {
	return c.allV.Watch()
}

func (c *Coordinator) WatchBreakdown() (<-chan chart.Breakdown, func()) {
	return c.breakdownV.Watch()
}

func (c *Coordinator) WatchFilter() (<-chan core.Filter, func()) {
	return c.filter.Watch()
}

func (c *Coordinator) WatchCustomCategories() (<-chan []string, func()) {
	return c.categories.Watch()
}

// Close stops both streams. Later operations that need a stream fail with
// ErrClosed.
func (c *Coordinator) Close() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.filteredP != nil {
		c.filteredP.stop()
	}
	if c.unfiltered != nil {
		c.unfiltered.stop()
	}
	c.cancel()
	return nil
}
