// Package memory is an in-process record store with the same contract as the
// SQLite repository. Nothing survives the process.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"traty/internal/core"
	"traty/internal/live"
)

type Store struct {
	mu     sync.RWMutex
	items  []core.Expense
	lastID int64
	hub    *live.Hub
	now    func() time.Time
	fail   error
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used by the live-query hub.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.hub = live.NewHub(logger) }
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = live.NewHub(nil)
	}
	return s
}

// SetUnavailable makes every later operation fail with err wrapped in
// core.ErrStorageUnavailable. Pass nil to recover.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Store) check(op string) error {
	if s.fail != nil {
		return fmt.Errorf("%s: %w: %w", op, core.ErrStorageUnavailable, s.fail)
	}
	return nil
}

func (s *Store) Insert(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("insert expense"); err != nil {
		return core.Expense{}, err
	}

	if e.ID == 0 {
		e.ID = s.lastID + 1
	} else if s.indexOf(e.ID) >= 0 {
		return core.Expense{}, fmt.Errorf("insert expense: %w: id %d already exists", core.ErrStorageUnavailable, e.ID)
	}
	if e.ID > s.lastID {
		s.lastID = e.ID
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = s.now().UnixMilli()
	}
	if e.Currency == "" {
		e.Currency = core.DefaultCurrency
	}
	s.items = append(s.items, e)
	s.hub.Notify()
	return e, nil
}

func (s *Store) Update(_ context.Context, e core.Expense) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update expense"); err != nil {
		return false, err
	}

	i := s.indexOf(e.ID)
	if i < 0 {
		return false, nil
	}
	cur := &s.items[i]
	cur.Amount = e.Amount
	cur.Currency = e.Currency
	cur.Category = e.Category
	cur.Comment = e.Comment
	cur.Date = e.Date
	s.hub.Notify()
	return true, nil
}

func (s *Store) Delete(_ context.Context, e core.Expense) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete expense"); err != nil {
		return false, err
	}

	i := s.indexOf(e.ID)
	if i < 0 {
		return false, nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.hub.Notify()
	return true, nil
}

func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Snapshot returns the matching rows ordered createdAt DESC, id DESC.
func (s *Store) Snapshot(_ context.Context, filter core.Filter) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("query " + filter.Key()); err != nil {
		return core.Snapshot{}, err
	}

	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return core.Snapshot{Version: s.hub.Version(), Filter: filter, Expenses: out}, nil
}

func (s *Store) Subscribe(ctx context.Context, filter core.Filter) (*live.Subscription, error) {
	return s.hub.Subscribe(ctx, filter, func(ctx context.Context) (core.Snapshot, error) {
		return s.Snapshot(ctx, filter)
	})
}

func (s *Store) QueryAll(ctx context.Context) (*live.Subscription, error) {
	return s.Subscribe(ctx, core.NoFilter())
}

func (s *Store) QueryByCategory(ctx context.Context, category string) (*live.Subscription, error) {
	return s.Subscribe(ctx, core.ByCategory(category))
}

func (s *Store) QueryByDateRange(ctx context.Context, start, end string) (*live.Subscription, error) {
	return s.Subscribe(ctx, core.ByDateRange(start, end))
}

// ActiveSubscriptions returns the number of open live queries.
func (s *Store) ActiveSubscriptions() int {
	return s.hub.Active()
}

// Version returns the current table version.
func (s *Store) Version() uint64 {
	return s.hub.Version()
}

// SchemaVersion reports the version a migrated SQLite store reports.
func (s *Store) SchemaVersion(context.Context) (int, error) {
	return 4, nil
}

// Len returns the number of stored expenses.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}
