package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/api"
	"github.com/vladislavdragonenkov/shopcore/internal/gateway/mock"
	"github.com/vladislavdragonenkov/shopcore/internal/gateway/paystack"
	healthcheck "github.com/vladislavdragonenkov/shopcore/internal/health"
	"github.com/vladislavdragonenkov/shopcore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopcore/internal/metrics"
	idemsvc "github.com/vladislavdragonenkov/shopcore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shopcore/internal/service/orders"
	"github.com/vladislavdragonenkov/shopcore/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopcore/internal/service/reconciler"
	"github.com/vladislavdragonenkov/shopcore/internal/version"
)

// Run собирает зависимости и запускает HTTP API, сервер метрик и фоновых
// воркеров. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	orderMetrics := metrics.NewOrderMetrics()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	pricing := orders.PricingPolicy{
		TaxRateBps:                 cfg.TaxRateBps,
		ShippingFlatMinor:          cfg.ShippingFlatMinor,
		FreeShippingThresholdMinor: cfg.FreeShippingThresholdMinor,
	}

	orderService := orders.NewService(
		deps.Orders,
		deps.Catalog,
		deps.Catalog,
		deps.Outbox,
		deps.Timeline,
		pricing,
		orders.WithCart(deps.Cart),
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(logger.WithField("layer", "orders")),
	)

	paymentReconciler := reconciler.New(
		deps.Orders,
		deps.Idempotency,
		deps.Outbox,
		deps.Timeline,
		reconciler.WithMetrics(orderMetrics),
		reconciler.WithLogger(logger.WithField("layer", "reconciler")),
		reconciler.WithEventTTL(cfg.PaymentEventTTL),
	)
	registerGateways(paymentReconciler, cfg, logger)

	startWorkers(ctx, cfg, deps, kafkaProducer, logger)

	healthHandler := newHealthHandler(ctx, deps)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiServer := api.NewServer(orderService, paymentReconciler, deps.Idempotency, deps.Catalog)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if cfg.PostgresDSN == "" {
		logger.Info("postgres DSN is not set, using in-memory storage")
		return NewDependencies(logger), nil
	}
	deps, err := NewPostgresDependencies(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("postgres storage initialized")
	return deps, nil
}

// registerGateways регистрирует платёжные шлюзы, для которых задан секрет.
func registerGateways(rec *reconciler.Reconciler, cfg Config, logger *log.Entry) {
	if cfg.PaystackSecret != "" {
		rec.Register(paystack.New(cfg.PaystackSecret))
		logger.Info("paystack gateway registered")
	}
	if cfg.MockGatewaySecret != "" {
		rec.Register(mock.New(cfg.MockGatewaySecret))
		logger.Info("mock gateway registered")
	}
}

// startWorkers запускает воркер публикации outbox (если настроен Kafka)
// и воркер очистки просроченных записей идемпотентности.
func startWorkers(ctx context.Context, cfg Config, deps *Dependencies, producer *kafka.Producer, logger *log.Entry) {
	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents, kafka.TopicPaymentEvents)
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(
			deps.Outbox,
			publisher,
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
		)
		go worker.Run(ctx)
	} else {
		logger.Info("kafka is not configured, outbox worker disabled")
	}

	cleanup := idemsvc.NewCleanupWorker(
		deps.Idempotency,
		idemsvc.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
	)
	go cleanup.Run(ctx)
}

func newHealthHandler(ctx context.Context, deps *Dependencies) *healthcheck.Handler {
	v, _, _ := version.Info()
	handler := healthcheck.NewHandler(v)
	if deps.Store != nil {
		store := deps.Store
		handler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
	}
	return handler
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
