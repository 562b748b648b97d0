package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/auth"
	"github.com/vladislavdragonenkov/exopet/internal/config"
	healthcheck "github.com/vladislavdragonenkov/exopet/internal/health"
	"github.com/vladislavdragonenkov/exopet/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/exopet/internal/metrics"
	"github.com/vladislavdragonenkov/exopet/internal/service/idempotency"
	"github.com/vladislavdragonenkov/exopet/internal/service/inventory"
	"github.com/vladislavdragonenkov/exopet/internal/service/ordernumber"
	"github.com/vladislavdragonenkov/exopet/internal/service/orders"
	"github.com/vladislavdragonenkov/exopet/internal/service/outbox"
	"github.com/vladislavdragonenkov/exopet/internal/telemetry"
	"github.com/vladislavdragonenkov/exopet/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/exopet/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// application — собранный процесс: HTTP API, health checks и фоновые воркеры.
type application struct {
	deps     *runtimeDependencies
	router   http.Handler
	health   *healthcheck.Handler
	producer *kafka.Producer

	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
}

// newApplication связывает хранилища, шлюз, сервис заказов и транспорт.
func newApplication(ctx context.Context, cfg config.Config, logger *log.Entry) (*application, error) {
	pricing, err := cfg.Pricing()
	if err != nil {
		return nil, err
	}
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tokenKey, err := cfg.TokenKeyBytes()
	if err != nil {
		return nil, err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &application{deps: deps}
	fail := func(err error) (*application, error) {
		app.close(logger)
		return nil, err
	}

	gateway, err := initGateway(cfg, logger)
	if err != nil {
		return fail(err)
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()
	ledger := inventory.NewLedger(deps.products, checkoutMetrics, logger.WithField("component", "inventory"))
	numbers := ordernumber.NewGenerator(deps.sequences,
		ordernumber.WithPrefix(cfg.OrderNumberPrefix),
		ordernumber.WithLocation(location),
	)

	service, err := orders.NewService(orders.Dependencies{
		Orders:   deps.repo,
		Products: deps.products,
		Ledger:   ledger,
		Numbers:  numbers,
		Gateway:  gateway,
		Outbox:   deps.outboxRepo,
		Timeline: deps.timelineRepo,
	}, orders.Config{
		Pricing:   pricing,
		ReturnURL: cfg.ReturnURL(),
	},
		orders.WithLogger(logger.WithField("component", "orders")),
		orders.WithMetrics(checkoutMetrics),
	)
	if err != nil {
		return fail(fmt.Errorf("init order service: %w", err))
	}

	if len(tokenKey) == 0 {
		logger.Warn("EXOPET_TOKEN_KEY is empty, tokens are signed with a random per-process key")
	}
	tokens, err := auth.NewTokenService(tokenKey, auth.DefaultTTL)
	if err != nil {
		return fail(fmt.Errorf("init token service: %w", err))
	}

	app.router, err = httpapi.NewRouter(httpapi.Deps{
		Orders:      service,
		Products:    deps.products,
		Ledger:      ledger,
		Tokens:      tokens,
		Idempotency: idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency-guard")),
	}, httpapi.WithLogger(logger.WithField("component", "http")))
	if err != nil {
		return fail(fmt.Errorf("init http router: %w", err))
	}

	app.producer = initKafkaProducer(cfg, logger)
	if app.producer != nil {
		app.outboxWorker = outbox.NewWorker(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(app.producer, cfg.KafkaTopic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(app.producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
	}
	app.cleanupWorker = idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
	)

	app.health = healthcheck.NewHandler(version.GetVersion())
	app.health.RegisterChecker("storage", deps.storageChecker)
	if deps.sequenceChecker != nil {
		app.health.RegisterChecker("redis", deps.sequenceChecker)
	}
	if cfg.KafkaEnabled() {
		app.health.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", app.producer.Ping))
	}

	return app, nil
}

// startWorkers запускает фоновые воркеры; wg завершается после их остановки.
func (a *application) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	if a.outboxWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.outboxWorker.Run(ctx)
		}()
	}
	if a.cleanupWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.cleanupWorker.Run(ctx)
		}()
	}
}

func (a *application) close(logger *log.Entry) {
	closeKafka(a.producer, logger)
	a.producer = nil
	if a.deps != nil {
		if err := a.deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage connections")
		}
	}
}

// Run собирает сервис по конфигурации и обслуживает HTTP API до отмены ctx.
// При отмене ctx сервер дообрабатывает запросы, воркеры останавливаются, подключения закрываются.
func Run(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, version.ServiceName, version.GetVersion(), logger.WithField("component", "telemetry"))
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, app.health)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	app.startWorkers(workersCtx, &workers)

	apiSrv := &http.Server{Handler: app.router, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", lis.Addr().String()).Info("HTTP API listening")
		errCh <- apiSrv.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP API")
		shutdownHTTP(apiSrv, logger)
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownWorkers(stopWorkers, &workers, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

// shutdownWorkers останавливает воркеры и ждёт их завершения не дольше shutdownTimeout.
func shutdownWorkers(cancel context.CancelFunc, wg *sync.WaitGroup, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if wg == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, health *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.WithField("addr", addr).Info("metrics and health checks listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http server shutdown with error")
	}
}
