package backend

import (
	"context"
	"fmt"
	"log/slog"

	"omnifin/internal/amqp"
	"omnifin/internal/ports"
	"omnifin/internal/ports/memory"
	"omnifin/internal/services"
	"omnifin/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store, attaches the optional event
// publisher and wraps both in a ledger service.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	opts := []services.Option{}
	if config.DashboardTimeout > 0 {
		opts = append(opts, services.WithDashboardTimeout(config.DashboardTimeout))
	}
	if publisher := f.createPublisher(ctx, config); publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}

	ledger := services.NewLedgerService(store, opts...)
	return &BackendResult{
		Ledger:  ledger,
		Store:   store,
		Cleanup: ledger.Close,
	}, nil
}

func (f *DefaultFactory) createStore(config Config) (ports.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createPublisher returns nil when AMQP is disabled or unreachable; the
// ledger keeps working without events.
func (f *DefaultFactory) createPublisher(_ context.Context, config Config) ports.EventPublisher {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
