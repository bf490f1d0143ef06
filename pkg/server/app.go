package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BloomPull/internal/handler/api"
	"BloomPull/internal/orchestrator"
	internalrepo "BloomPull/internal/repository"
	"BloomPull/internal/status"
	pkgch "BloomPull/pkg/clickhouse"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	pkgkafka "BloomPull/pkg/kafka"
	applogger "BloomPull/pkg/logger"
	"BloomPull/pkg/queue"

	domrepo "BloomPull/internal/domain/repository"
)

// App owns the process lifecycle: it starts the orchestrator, the optional
// Kafka and Redis consumers, and the HTTP server, then blocks until a signal
// and unwinds in reverse order.
type App struct {
	cfg          *config.Config
	l            *applogger.Logger
	orch         *orchestrator.Orchestrator
	consumer     *pkgkafka.Consumer
	refreshQueue *queue.RedisQueue
	bus          domrepo.Bus
	store        *internalrepo.CHStore
	registry     *status.Registry
	handler      *api.MarketDataHandler
	chClient     *pkgch.Client
	httpServer   *xhttp.Server
}

func New(
	cfg *config.Config,
	l *applogger.Logger,
	orch *orchestrator.Orchestrator,
	consumer *pkgkafka.Consumer,
	refreshQueue *queue.RedisQueue,
	bus domrepo.Bus,
	store *internalrepo.CHStore,
	registry *status.Registry,
	handler *api.MarketDataHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:          cfg,
		l:            l,
		orch:         orch,
		consumer:     consumer,
		refreshQueue: refreshQueue,
		bus:          bus,
		store:        store,
		registry:     registry,
		handler:      handler,
		chClient:     chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// rebuild source health from the audit trail before anything runs
	a.warmRegistry(ctx)

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled),
		xhttp.WithRequestLogger(a.l),
	)

	if err := a.orch.Start(ctx); err != nil {
		return err
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start", applogger.Error(err))
			return err
		}
		a.l.Info("bar-events consumer started", applogger.String("topic", a.cfg.Kafka.Topic))
	}

	if a.refreshQueue != nil {
		if err := a.refreshQueue.Start(); err != nil {
			a.l.Error("refresh queue start", applogger.Error(err))
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start", applogger.Error(err))
		return err
	}
	a.l.Info("application started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// warmRegistry replays the recent run trail so /status is meaningful right
// after a restart instead of empty until the first cycle completes.
func (a *App) warmRegistry(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	runs, err := a.store.QueryRuns(qctx, time.Now().AddDate(0, 0, -7), 1000)
	if err != nil {
		a.l.Warn("registry warmup skipped", applogger.Error(err))
		return
	}
	a.registry.FromRuns(runs)
	a.l.Info("registry warmed", applogger.Int("runs", len(runs)))
}

// shutdown unwinds in reverse start order: stop intake first, drain workers,
// then close infrastructure.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown", applogger.Error(err))
	}

	if err := a.orch.Stop(ctx); err != nil {
		a.l.Warn("orchestrator stop", applogger.Error(err))
	}

	if a.refreshQueue != nil {
		if err := a.refreshQueue.Stop(ctx); err != nil {
			a.l.Warn("refresh queue stop", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop", applogger.Error(err))
		}
	}

	if err := a.bus.Close(); err != nil {
		a.l.Warn("bus close", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
