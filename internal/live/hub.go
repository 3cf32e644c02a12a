// Package live implements push-based live queries: a table version counter that
// wakes subscriptions on every change, subscriptions that re-fetch and deliver
// full snapshots, and conflated value holders for downstream observers.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"traty/internal/core"
)

// ErrClosed is returned when subscribing to a hub that has been closed.
var ErrClosed = errors.New("live: hub closed")

// FetchFunc reads the current rows for one filter. It is called once on
// subscribe and again after every change signal.
type FetchFunc func(ctx context.Context) (core.Snapshot, error)

// Hub tracks the version of one table and the subscriptions watching it.
type Hub struct {
	mu       sync.Mutex
	version  uint64
	watchers map[uint64]chan struct{}
	nextID   uint64
	closed   bool
	logger   *slog.Logger
}

// NewHub returns a hub at version 0.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		watchers: make(map[uint64]chan struct{}),
		logger:   logger,
	}
}

// Version returns the current table version.
func (h *Hub) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Notify records one table change and wakes every watcher, whatever its filter.
// Signals coalesce: a watcher that has not yet consumed the previous signal
// will re-fetch once for both.
func (h *Hub) Notify() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	for _, ch := range h.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	changesTotal.Inc()
	return h.version
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Close cancels nothing by itself but refuses new subscriptions and wakes
// existing ones so they observe their own cancellation promptly.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, ch := range h.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) watch() (uint64, <-chan struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, ErrClosed
	}
	h.nextID++
	ch := make(chan struct{}, 1)
	h.watchers[h.nextID] = ch
	subscriptionsActive.Inc()
	return h.nextID, ch, nil
}

func (h *Hub) unwatch(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[id]; ok {
		delete(h.watchers, id)
		subscriptionsActive.Dec()
	}
}

// Subscribe registers a watcher, performs the initial fetch synchronously and
// starts a goroutine that delivers it and every later snapshot on the
// subscription's channel. An initial fetch error is returned and nothing leaks.
//
// The subscription ends when ctx is done, Cancel is called, or a re-fetch
// fails; in the last case Err reports why.
func (h *Hub) Subscribe(ctx context.Context, filter core.Filter, fetch FetchFunc) (*Subscription, error) {
	id, signal, err := h.watch()
	if err != nil {
		return nil, err
	}

	// Registering before the first fetch means a change racing with it still
	// produces a follow-up emission.
	initial, err := fetch(ctx)
	if err != nil {
		h.unwatch(id)
		return nil, fmt.Errorf("initial fetch for %s: %w", filter.Key(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		filter: filter,
		out:    make(chan core.Snapshot),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.out)
		defer h.unwatch(id)
		sub.run(ctx, initial, signal, fetch, h.logger)
	}()

	return sub, nil
}
