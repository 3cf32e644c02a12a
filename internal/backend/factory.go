package backend

import (
	"context"
	"fmt"
	"log/slog"

	"traty/internal/amqp"
	"traty/internal/log"
	"traty/internal/ports"
	"traty/internal/services"
	"traty/internal/storage"
	"traty/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store ports.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteStore(config)
	case MemoryBackend:
		store = f.createMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	return f.withEvents(ctx, store, config), nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (ports.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, storage.Options{
		Logger:    f.logger,
		CacheSize: config.CacheSize,
		CacheTTL:  config.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore() ports.Store {
	store := memory.New(memory.WithLogger(f.logger))
	f.logger.Info("Initialized memory backend")
	return store
}

// withEvents wraps store in the event-publishing decorator when AMQP is
// configured. A broker that cannot be reached leaves events disabled.
func (f *DefaultFactory) withEvents(ctx context.Context, store ports.Store, config Config) *BackendResult {
	if config.AMQPURL == "" {
		return &BackendResult{Store: store, Cleanup: store.Close}
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", "error", err)
		return &BackendResult{Store: store, Cleanup: store.Close}
	}
	client.WithLogger(f.logger.With(log.FieldComponent, log.ComponentAMQP))

	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	service := services.NewExpenseService(store, client)
	return &BackendResult{
		Store:         service,
		Cleanup:       service.Close,
		EventsEnabled: true,
	}
}
