package notify

import (
	"context"
	"log/slog"
	"time"

	"traty/internal/log"
)

// Kind names a notification type.
type Kind string

const (
	KindDailyReminder Kind = "daily_reminder"
	KindWeeklySummary Kind = "weekly_summary"
	KindBudgetAlert   Kind = "budget_alert"
)

// Notification is one message for the user.
type Notification struct {
	Kind  Kind
	Title string
	Body  string
	At    time.Time
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log. It is the sender of
// the headless notifier.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, n.Title,
		log.FieldComponent, log.ComponentNotify,
		"kind", n.Kind,
		"body", n.Body,
		"at", n.At)
	return nil
}
