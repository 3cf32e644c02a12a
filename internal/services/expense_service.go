package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"traty/internal/amqp"
	"traty/internal/core"
	"traty/internal/log"
	"traty/internal/ports"
)

// EventPublisher sends expense change events to the broker.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, evt *amqp.ExpenseEvent) error
}

// ExpenseService decorates a record store: every effective mutation is
// followed by an ExpenseEvent. Reads pass straight through.
type ExpenseService struct {
	ports.Store
	publisher EventPublisher
}

func NewExpenseService(store ports.Store, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		Store:     store,
		publisher: publisher,
	}
}

// Insert saves the expense locally and publishes a created event
func (s *ExpenseService) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	// Save locally first (fast, reliable)
	stored, err := s.Store.Insert(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, amqp.EventCreated, stored)
	return stored, nil
}

func (s *ExpenseService) Update(ctx context.Context, e core.Expense) (bool, error) {
	changed, err := s.Store.Update(ctx, e)
	if err != nil {
		return false, fmt.Errorf("update expense: %w", err)
	}
	if changed {
		s.publish(ctx, amqp.EventUpdated, s.stored(ctx, e))
	}
	return changed, nil
}

// stored re-reads the row after an update so the event carries createdAt and
// the currency as persisted. The caller's copy is used if the read fails.
func (s *ExpenseService) stored(ctx context.Context, e core.Expense) core.Expense {
	snap, err := s.Store.Snapshot(ctx, core.ByDateRange(e.Date, e.Date))
	if err != nil {
		slog.WarnContext(ctx, "Re-reading updated expense failed, publishing caller copy",
			log.FieldComponent, log.ComponentEvents,
			log.FieldExpenseID, e.ID,
			log.FieldError, err)
		return e
	}
	for _, row := range snap.Expenses {
		if row.ID == e.ID {
			return row
		}
	}
	return e
}

func (s *ExpenseService) Delete(ctx context.Context, e core.Expense) (bool, error) {
	changed, err := s.Store.Delete(ctx, e)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	if changed {
		s.publish(ctx, amqp.EventDeleted, e)
	}
	return changed, nil
}

// publish never fails the caller; the local write already happened.
func (s *ExpenseService) publish(ctx context.Context, kind amqp.EventKind, e core.Expense) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping event",
			log.FieldComponent, log.ComponentEvents,
			log.FieldEventKind, kind,
			log.FieldExpenseID, e.ID)
		return
	}

	evt := amqp.NewExpenseEvent(kind, e)
	if err := s.publisher.PublishExpenseEvent(ctx, evt); err != nil {
		eventsFailed.WithLabelValues(string(kind)).Inc()
		slog.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldComponent, log.ComponentEvents,
			log.FieldEventID, evt.ID,
			log.FieldEventKind, kind,
			log.FieldExpenseID, e.ID,
			log.FieldError, err)
		return
	}
	eventsPublished.WithLabelValues(string(kind)).Inc()
}

// Close closes both the store and the publisher connection
func (s *ExpenseService) Close() error {
	var errs []error

	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}
