package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"

	"traty/internal/amqp"
	"traty/internal/chart"
	"traty/internal/core"
	"traty/internal/log"
	"traty/internal/prefs"
)

// Keys under which the worker remembers when each notification last went out.
const (
	KeyLastDailyReminder = "notify.last_daily_reminder"
	KeyLastWeeklySummary = "notify.last_weekly_summary"
	KeyLastBudgetAlert   = "notify.last_budget_alert"
)

// summaryCategories is how many categories the weekly summary lists.
const summaryCategories = 3

// Reader is the read side the worker needs.
type Reader interface {
	Snapshot(ctx context.Context, filter core.Filter) (core.Snapshot, error)
}

// Settings selects which notifications are on and when they fire.
type Settings struct {
	DailyReminder bool
	Daily         DailyReminder

	WeeklySummary bool
	Weekly        WeeklySummary

	// BudgetAlerts fire when the current month's total exceeds MonthlyBudget.
	// A zero budget disables them.
	BudgetAlerts  bool
	MonthlyBudget decimal.Decimal
}

// DefaultSettings enables everything: reminder at 19:00, summary on Monday.
func DefaultSettings() Settings {
	at := Clock{Hour: 19}
	return Settings{
		DailyReminder: true,
		Daily:         DailyReminder{At: at},
		WeeklySummary: true,
		Weekly:        WeeklySummary{Day: time.Monday, At: at},
		BudgetAlerts:  true,
	}
}

type Option func(*Worker)

func WithClock(clock func() time.Time) Option {
	return func(w *Worker) { w.now = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Worker decides when notifications are due and sends them. Send times are
// kept in a prefs.Store so a restart does not repeat them.
type Worker struct {
	reader   Reader
	sender   Sender
	state    prefs.Store
	settings Settings

	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

func NewWorker(reader Reader, sender Sender, state prefs.Store, settings Settings, opts ...Option) *Worker {
	w := &Worker{
		reader:   reader,
		sender:   sender,
		state:    state,
		settings: settings,
		now:      time.Now,
		logger:   slog.Default(),
		last:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(log.FieldComponent, log.ComponentNotify)
	for _, key := range []string{KeyLastDailyReminder, KeyLastWeeklySummary, KeyLastBudgetAlert} {
		w.last[key] = w.loadTime(key)
	}
	return w
}

func (w *Worker) loadTime(key string) time.Time {
	if w.state == nil {
		return time.Time{}
	}
	raw, err := w.state.GetString(key, "")
	if err != nil || raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		w.logger.Warn("Ignoring unreadable notification state", log.FieldKey, key, log.FieldError, err)
		return time.Time{}
	}
	return t
}

func (w *Worker) lastSent(key string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last[key]
}

func (w *Worker) markSent(key string, at time.Time) {
	w.mu.Lock()
	w.last[key] = at
	w.mu.Unlock()

	if w.state == nil {
		return
	}
	if err := w.state.PutString(key, at.Format(time.RFC3339)); err != nil {
		w.logger.Warn("Failed to persist notification state",
			log.FieldOperation, log.OpPersist,
			log.FieldKey, key,
			log.FieldError, err)
	}
}

func (w *Worker) send(ctx context.Context, key string, n Notification) error {
	if err := w.sender.Send(ctx, n); err != nil {
		notificationsFailed.WithLabelValues(string(n.Kind)).Inc()
		return fmt.Errorf("send %s: %w", n.Kind, err)
	}
	notificationsSent.WithLabelValues(string(n.Kind)).Inc()
	w.markSent(key, n.At)
	return nil
}

// Tick sends the daily reminder and the weekly summary when they are due.
func (w *Worker) Tick(ctx context.Context) error {
	t := w.now()
	var errs []error

	if w.settings.DailyReminder && w.settings.Daily.IsDue(w.lastSent(KeyLastDailyReminder), t) {
		if err := w.sendDailyReminder(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	if w.settings.WeeklySummary && w.settings.Weekly.IsDue(w.lastSent(KeyLastWeeklySummary), t) {
		if err := w.sendWeeklySummary(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) sendDailyReminder(ctx context.Context, t time.Time) error {
	today := core.FormatDate(t)
	snap, err := w.reader.Snapshot(ctx, core.ByDateRange(today, today))
	if err != nil {
		return fmt.Errorf("daily reminder: %w", err)
	}

	body := "You have not recorded any expenses today."
	if n := snap.Len(); n > 0 {
		body = fmt.Sprintf("Today: %d expense(s), %s in total.", n,
			core.FormatAmount(snap.Total(), core.DefaultCurrency))
	}
	return w.send(ctx, KeyLastDailyReminder, Notification{
		Kind:  KindDailyReminder,
		Title: "Daily reminder",
		Body:  body,
		At:    t,
	})
}

func (w *Worker) sendWeeklySummary(ctx context.Context, t time.Time) error {
	filter, err := core.PeriodLast7Days.Filter(t)
	if err != nil {
		return fmt.Errorf("weekly summary: %w", err)
	}
	snap, err := w.reader.Snapshot(ctx, filter)
	if err != nil {
		return fmt.Errorf("weekly summary: %w", err)
	}

	breakdown := chart.Aggregate(snap.Expenses)
	var b strings.Builder
	fmt.Fprintf(&b, "Last 7 days: %d expense(s), %s in total.", snap.Len(),
		core.FormatAmount(breakdown.GrandTotal, core.DefaultCurrency))
	for _, s := range breakdown.Top(summaryCategories) {
		fmt.Fprintf(&b, "\n%s: %s (%s)", s.Category,
			core.FormatAmount(s.Total, core.DefaultCurrency), s.PercentLabel())
	}

	return w.send(ctx, KeyLastWeeklySummary, Notification{
		Kind:  KindWeeklySummary,
		Title: "Weekly summary",
		Body:  b.String(),
		At:    t,
	})
}

// HandleEvent checks the monthly budget after a created or updated expense
// and sends at most one alert per calendar month.
func (w *Worker) HandleEvent(ctx context.Context, evt *amqp.ExpenseEvent) error {
	if !w.settings.BudgetAlerts || !w.settings.MonthlyBudget.IsPositive() {
		return nil
	}
	if evt.Kind == amqp.EventDeleted {
		return nil
	}

	t := w.now()
	if !(BudgetAlert{}).IsDue(w.lastSent(KeyLastBudgetAlert), t) {
		return nil
	}

	month := now.With(t)
	filter := core.ByDateRange(core.FormatDate(month.BeginningOfMonth()), core.FormatDate(month.EndOfMonth()))
	snap, err := w.reader.Snapshot(ctx, filter)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}

	total := snap.Total()
	w.logger.DebugContext(ctx, "Budget checked",
		log.FieldEventID, evt.ID,
		log.FieldEventKind, evt.Kind,
		log.FieldAmount, total.String(),
		"budget", w.settings.MonthlyBudget.String())
	if !total.GreaterThan(w.settings.MonthlyBudget) {
		return nil
	}

	return w.send(ctx, KeyLastBudgetAlert, Notification{
		Kind:  KindBudgetAlert,
		Title: "Monthly budget exceeded",
		Body: fmt.Sprintf("Spent %s this month, budget is %s.",
			core.FormatAmount(total, core.DefaultCurrency),
			core.FormatAmount(w.settings.MonthlyBudget, core.DefaultCurrency)),
		At: t,
	})
}

// Run calls Tick every interval until ctx is done. Tick errors are logged.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "Notification worker started", "interval", interval)
	for {
		if err := w.Tick(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Notification tick failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Notification worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
