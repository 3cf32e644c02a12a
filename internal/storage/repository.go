package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"traty/internal/cache"
	"traty/internal/core"
	"traty/internal/live"
	"traty/internal/log"

	_ "modernc.org/sqlite"
)

const (
	tableExpenses = "expenses"

	defaultCacheSize = 64
	defaultCacheTTL  = 5 * time.Minute
	busyTimeoutMS    = 5000
)

var columns = []string{"id", "amount", "currency", "category", "comment", "date", "createdAt"}

// Options tunes a SQLiteRepository. Zero values select defaults.
type Options struct {
	Logger    *slog.Logger
	CacheSize int
	CacheTTL  time.Duration
	// Clock stamps createdAt on insert.
	Clock func() time.Time
}

// SQLiteRepository is the durable record store. Every effective mutation bumps
// the table version and wakes all live subscriptions.
type SQLiteRepository struct {
	db  *sql.DB
	dsn string

	// mu orders writes against snapshot reads so a version always labels
	// the rows it was read with.
	mu  sync.RWMutex
	hub *live.Hub

	snapshots *cache.LRUCache[core.Snapshot]
	caches    *cache.Manager

	now    func() time.Time
	logger *slog.Logger
}

// DSN turns a database file path into a modernc sqlite DSN with a busy timeout.
func DSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dbPath, sep, busyTimeoutMS)
}

func NewSQLiteRepository(dbPath string, opts Options) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w: %w", core.ErrStorageUnavailable, err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w: %w", core.ErrStorageUnavailable, err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY between our own conns.
	// A single long-lived connection also keeps PRAGMA data_version comparable.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", core.ErrStorageUnavailable, err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w: %w", core.ErrStorageUnavailable, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(log.FieldComponent, log.ComponentStorage)
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	repo := &SQLiteRepository{
		db:        db,
		dsn:       dsn,
		hub:       live.NewHub(logger),
		snapshots: cache.NewLRUCache[core.Snapshot](size, ttl),
		caches:    cache.NewManager(logger),
		now:       clock,
		logger:    logger,
	}
	repo.caches.Register(repo.snapshots)
	repo.caches.StartCleanup(ttl)

	logger.Info("SQLite store ready", "path", dbPath, "schema_version", SchemaVersion)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	r.hub.Close()
	r.caches.Stop()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Insert stores e and returns the row as persisted. A zero ID is assigned by
// the database, a zero CreatedAt is stamped from the clock and an empty
// currency becomes core.DefaultCurrency.
func (r *SQLiteRepository) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	start := time.Now()
	defer observe(log.OpInsert, start)

	if e.CreatedAt == 0 {
		e.CreatedAt = r.now().UnixMilli()
	}
	if e.Currency == "" {
		e.Currency = core.DefaultCurrency
	}

	cols := columns[1:]
	vals := []any{e.Amount.InexactFloat64(), e.Currency, e.Category, nullable(e.Comment), e.Date, e.CreatedAt}
	if e.ID != 0 {
		cols = columns
		vals = append([]any{e.ID}, vals...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := sq.Insert(tableExpenses).
		Columns(cols...).
		Values(vals...).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w: %w", core.ErrStorageUnavailable, err)
	}
	if e.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return core.Expense{}, fmt.Errorf("read inserted id: %w: %w", core.ErrStorageUnavailable, err)
		}
		e.ID = id
	}

	version := r.hub.Notify()
	fields := log.NewFields().
		WithOperation(log.OpInsert).
		WithExpense(e.ID, e.Amount.String(), e.Currency, e.Category, e.Date)
	fields[log.FieldVersion] = version
	r.logger.DebugContext(ctx, "Expense inserted", fields.ToSlice()...)
	return e, nil
}

// Update rewrites the mutable fields of the row with e.ID. A missing row
// reports false and leaves subscribers asleep.
func (r *SQLiteRepository) Update(ctx context.Context, e core.Expense) (bool, error) {
	start := time.Now()
	defer observe(log.OpUpdate, start)

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := sq.Update(tableExpenses).
		Set("amount", e.Amount.InexactFloat64()).
		Set("currency", e.Currency).
		Set("category", e.Category).
		Set("comment", nullable(e.Comment)).
		Set("date", e.Date).
		Where(sq.Eq{"id": e.ID}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("update expense %d: %w: %w", e.ID, core.ErrStorageUnavailable, err)
	}
	return r.afterWrite(ctx, res, e.ID, log.OpUpdate)
}

// Delete removes the row with e.ID. A missing row reports false.
func (r *SQLiteRepository) Delete(ctx context.Context, e core.Expense) (bool, error) {
	start := time.Now()
	defer observe(log.OpDelete, start)

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := sq.Delete(tableExpenses).
		Where(sq.Eq{"id": e.ID}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("delete expense %d: %w: %w", e.ID, core.ErrStorageUnavailable, err)
	}
	return r.afterWrite(ctx, res, e.ID, log.OpDelete)
}

// afterWrite must be called with mu held.
func (r *SQLiteRepository) afterWrite(ctx context.Context, res sql.Result, id int64, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s expense %d: %w: %w", op, id, core.ErrStorageUnavailable, err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "No row matched, subscribers not notified",
			log.FieldOperation, op,
			log.FieldExpenseID, id)
		return false, nil
	}
	version := r.hub.Notify()
	r.logger.DebugContext(ctx, "Expense changed",
		log.FieldOperation, op,
		log.FieldExpenseID, id,
		log.FieldVersion, version)
	return true, nil
}

// Snapshot reads the rows matching filter, newest first.
func (r *SQLiteRepository) Snapshot(ctx context.Context, filter core.Filter) (core.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// The hub version only sees this process's writes. data_version moves
	// when another connection, such as a second process, commits.
	external, err := r.dataVersion(ctx)
	if err != nil {
		return core.Snapshot{}, err
	}
	version := r.hub.Version()
	key := fmt.Sprintf("%s@%d.%d", filter.Key(), version, external)
	if snap, ok := r.snapshots.Get(key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return snap.Clone(), nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	start := time.Now()
	defer observe(log.OpQuery, start)

	expenses, err := r.query(ctx, filter)
	if err != nil {
		return core.Snapshot{}, err
	}
	snap := core.Snapshot{Version: version, Filter: filter, Expenses: expenses}
	r.snapshots.Set(key, snap.Clone())
	return snap, nil
}

func (r *SQLiteRepository) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read data version: %w: %w", core.ErrStorageUnavailable, err)
	}
	return v, nil
}

func (r *SQLiteRepository) query(ctx context.Context, filter core.Filter) ([]core.Expense, error) {
	q := sq.Select(columns...).
		From(tableExpenses).
		OrderBy("createdAt DESC", "id DESC")

	switch filter.Kind {
	case core.FilterCategory:
		q = q.Where(sq.Eq{"category": filter.Category})
	case core.FilterDateRange:
		q = q.Where("date BETWEEN ? AND ?", filter.Start, filter.End)
	}

	rows, err := q.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w: %w", filter.Key(), core.ErrStorageUnavailable, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("Error closing rows", log.FieldError, err)
		}
	}()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		var (
			e       core.Expense
			amount  decimal.Decimal
			comment sql.NullString
		)
		if err := rows.Scan(&e.ID, &amount, &e.Currency, &e.Category, &comment, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w: %w", core.ErrStorageUnavailable, err)
		}
		e.Amount = amount
		e.Comment = comment.String
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w: %w", core.ErrStorageUnavailable, err)
	}
	return expenses, nil
}

// Subscribe opens a live query for filter. The initial snapshot is read
// before Subscribe returns.
func (r *SQLiteRepository) Subscribe(ctx context.Context, filter core.Filter) (*live.Subscription, error) {
	sub, err := r.hub.Subscribe(ctx, filter, func(ctx context.Context) (core.Snapshot, error) {
		return r.Snapshot(ctx, filter)
	})
	if err != nil {
		if errors.Is(err, live.ErrClosed) {
			return nil, fmt.Errorf("subscribe %s: %w: %w", filter.Key(), core.ErrStorageUnavailable, err)
		}
		return nil, err
	}
	r.logger.DebugContext(ctx, "Live query opened",
		log.FieldOperation, log.OpSubscribe,
		log.FieldFilter, filter.Key())
	return sub, nil
}

func (r *SQLiteRepository) QueryAll(ctx context.Context) (*live.Subscription, error) {
	return r.Subscribe(ctx, core.NoFilter())
}

func (r *SQLiteRepository) QueryByCategory(ctx context.Context, category string) (*live.Subscription, error) {
	return r.Subscribe(ctx, core.ByCategory(category))
}

func (r *SQLiteRepository) QueryByDateRange(ctx context.Context, start, end string) (*live.Subscription, error) {
	return r.Subscribe(ctx, core.ByDateRange(start, end))
}

// Version returns the current table version.
func (r *SQLiteRepository) Version() uint64 {
	return r.hub.Version()
}

// SchemaVersion reads PRAGMA user_version.
func (r *SQLiteRepository) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := r.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w: %w", core.ErrStorageUnavailable, err)
	}
	return v, nil
}

// CacheStats reports snapshot cache hits and misses.
func (r *SQLiteRepository) CacheStats() (hits, misses uint64) {
	return r.snapshots.Stats()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
