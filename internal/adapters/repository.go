package adapters

import (
	"context"

	"traty/internal/core"
	"traty/internal/live"
	"traty/internal/ports"
)

// Repository is the facade screens and the view-state coordinator call into.
// It adds nothing to the store it wraps.
type Repository struct {
	store ports.Store
}

func NewRepository(store ports.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	return r.store.Insert(ctx, e)
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (bool, error) {
	return r.store.Update(ctx, e)
}

func (r *Repository) DeleteExpense(ctx context.Context, e core.Expense) (bool, error) {
	return r.store.Delete(ctx, e)
}

// AllExpenses is a live query over every expense, newest first.
func (r *Repository) AllExpenses(ctx context.Context) (*live.Subscription, error) {
	return r.store.QueryAll(ctx)
}

func (r *Repository) ExpensesByCategory(ctx context.Context, category string) (*live.Subscription, error) {
	return r.store.QueryByCategory(ctx, category)
}

func (r *Repository) ExpensesByDateRange(ctx context.Context, start, end string) (*live.Subscription, error) {
	return r.store.QueryByDateRange(ctx, start, end)
}

// Watch opens a live query for any filter.
func (r *Repository) Watch(ctx context.Context, filter core.Filter) (*live.Subscription, error) {
	return r.store.Subscribe(ctx, filter)
}

func (r *Repository) Snapshot(ctx context.Context, filter core.Filter) (core.Snapshot, error) {
	return r.store.Snapshot(ctx, filter)
}
