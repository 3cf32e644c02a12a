// Package ports declares the record-store contract shared by the storage
// backends, the event-publishing decorator and the repository facade.
package ports

import (
	"context"

	"traty/internal/core"
	"traty/internal/live"
)

type (
	// ExpenseWriter mutates the expenses table. Update and Delete report
	// false, without error, when no row has the given id.
	ExpenseWriter interface {
		Insert(ctx context.Context, e core.Expense) (core.Expense, error)
		Update(ctx context.Context, e core.Expense) (bool, error)
		Delete(ctx context.Context, e core.Expense) (bool, error)
	}

	// ExpenseReader serves one-shot snapshots and live queries.
	ExpenseReader interface {
		Snapshot(ctx context.Context, filter core.Filter) (core.Snapshot, error)
		Subscribe(ctx context.Context, filter core.Filter) (*live.Subscription, error)
		QueryAll(ctx context.Context) (*live.Subscription, error)
		QueryByCategory(ctx context.Context, category string) (*live.Subscription, error)
		QueryByDateRange(ctx context.Context, start, end string) (*live.Subscription, error)
	}

	// Store is a complete record store.
	Store interface {
		ExpenseWriter
		ExpenseReader
		SchemaVersion(ctx context.Context) (int, error)
		Close() error
	}
)
