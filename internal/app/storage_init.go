package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/config"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/exopet/internal/health"
	"github.com/vladislavdragonenkov/exopet/internal/storage/memory"
	"github.com/vladislavdragonenkov/exopet/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/exopet/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	products        domain.ProductRepository
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	sequences       domain.SequenceRepository

	storageChecker  healthcheck.Checker
	sequenceChecker healthcheck.Checker

	closers []func() error
}

// closeFn закрывает подключения в обратном порядке открытия.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	var store *postgres.Store
	switch strings.TrimSpace(cfg.StorageDriver) {
	case "", config.StorageDriverMemory:
		deps.products = memory.NewProductRepository()
		deps.repo = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.storageChecker = healthcheck.NewPingChecker("storage", func(context.Context) error { return nil })
		logger.WithField("storage_driver", config.StorageDriverMemory).Info("storage initialized")
	case config.StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage requires EXOPET_POSTGRES_DSN")
		}
		var err error
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.closeFn()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		deps.products = postgres.NewProductRepository(store)
		deps.repo = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.storageChecker = healthcheck.NewPingChecker("storage", store.Ping)
		logger.WithFields(log.Fields{
			"storage_driver": config.StorageDriverPostgres,
			"auto_migrate":   cfg.PostgresAutoMigrate,
		}).Info("storage initialized")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := initSequences(ctx, cfg, store, deps, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}
	return deps, nil
}

// initSequences выбирает backend суточного счётчика номеров заказов.
func initSequences(ctx context.Context, cfg config.Config, store *postgres.Store, deps *runtimeDependencies, logger *log.Entry) error {
	driver := cfg.EffectiveSequenceDriver()
	switch driver {
	case "", config.StorageDriverMemory:
		deps.sequences = memory.NewSequenceRepository()
	case config.StorageDriverPostgres:
		if store == nil {
			return errors.New("postgres sequence requires postgres storage")
		}
		deps.sequences = postgres.NewSequenceRepository(store)
	case config.SequenceDriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("redis sequence requires EXOPET_REDIS_ADDR")
		}
		client := redisstore.NewClient(cfg.RedisAddr)
		deps.closers = append(deps.closers, client.Close)

		sequences := redisstore.NewSequenceRepository(client)
		if err := sequences.Ping(ctx); err != nil {
			return fmt.Errorf("init redis sequence: %w", err)
		}
		deps.sequences = sequences
		deps.sequenceChecker = healthcheck.NewPingChecker("redis", sequences.Ping)
	default:
		return fmt.Errorf("unsupported sequence driver %q", driver)
	}

	logger.WithField("sequence_driver", driver).Info("order number sequence initialized")
	return nil
}
