package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"traty/internal/core"
)

// Subscription is one live query. Snapshots arrive on C in table-version order;
// each is the full ordered result set. C is closed when the subscription ends.
type Subscription struct {
	filter core.Filter
	out    chan core.Snapshot
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// C returns the snapshot channel. The first value is the initial fetch.
func (s *Subscription) C() <-chan core.Snapshot {
	return s.out
}

// Filter returns the filter this subscription was opened with.
func (s *Subscription) Filter() core.Filter {
	return s.filter
}

// Cancel releases the subscription and waits for its goroutine to exit.
// Safe to call more than once and from any goroutine other than a reader
// blocked inside its own delivery loop.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports the re-fetch error that ended the subscription, if any.
// Cancellation is not an error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) run(ctx context.Context, snap core.Snapshot, signal <-chan struct{}, fetch FetchFunc, logger *slog.Logger) {
	for {
		select {
		case s.out <- snap:
			snapshotsDelivered.Inc()
		case <-ctx.Done():
			return
		}

		select {
		case <-signal:
		case <-ctx.Done():
			return
		}

		next, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.ErrorContext(ctx, "Live query re-fetch failed, ending subscription",
				"filter", s.filter.Key(), "error", err)
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		snap = next
	}
}
