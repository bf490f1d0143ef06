package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"BloomPull/internal/adapter"
	"BloomPull/internal/adapter/coingecko"
	"BloomPull/internal/adapter/ecb"
	"BloomPull/internal/adapter/finnhub"
	"BloomPull/internal/adapter/fred"
	"BloomPull/internal/adapter/gdelt"
	"BloomPull/internal/adapter/stooq"
	"BloomPull/internal/adapter/yahoo"
	"BloomPull/internal/analytics"
	icache "BloomPull/internal/cache"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	"BloomPull/internal/handler/api"
	"BloomPull/internal/orchestrator"
	"BloomPull/internal/ratelimit"
	internalrepo "BloomPull/internal/repository"
	"BloomPull/internal/status"
	"BloomPull/internal/usecase"
	pkgcache "BloomPull/pkg/cache"
	pkgch "BloomPull/pkg/clickhouse"
	"BloomPull/pkg/config"
	xhttp "BloomPull/pkg/http"
	pkgkafka "BloomPull/pkg/kafka"
	"BloomPull/pkg/logger"
	"BloomPull/pkg/metrics"
	"BloomPull/pkg/queue"
	"BloomPull/pkg/server"
)

// ProvideLogger creates the process logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.EnsureDatabase(ctx, cfg.ClickHouse.Database); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse database: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideStore creates the ClickHouse-backed canonical store.
func ProvideStore(ch *pkgch.Client, cfg *config.Config, l *logger.Logger) *internalrepo.CHStore {
	return internalrepo.NewCHStore(ch, cfg.ClickHouse.Database, l)
}

// ProvideRedisCache creates the Redis cache layer, or nil when Redis is
// disabled and the process runs on the in-memory cache alone.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService picks the cache topology: layered memory-over-Redis
// when Redis is configured, plain in-process LRU otherwise.
func ProvideCacheService(redisCache *pkgcache.RedisCache, cfg *config.Config) pkgcache.Service {
	size := cfg.Cache.MemorySize
	if size <= 0 {
		size = 10000
	}
	if redisCache == nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(size))
	}
	return pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(size))
}

// ProvideDomainCache wraps the cache service with entity-aware keys, TTLs,
// and the bounded bars recency view.
func ProvideDomainCache(svc pkgcache.Service, rec repository.Metrics, cfg *config.Config) *icache.Domain {
	return icache.NewDomain(svc, rec, cfg.Cache.BarsTTL, cfg.Cache.MetricsTTL, cfg.Cache.MetaTTL)
}

// ProvideFetchers builds one adapter per enabled source over a shared HTTP
// client and rate limiter.
func ProvideFetchers(cfg *config.Config, l *logger.Logger) map[models.Source]adapter.Fetcher {
	deps := adapter.Deps{
		HTTP:    xhttp.NewClient(xhttp.WithUserAgent("BloomPull/1.0")),
		Limiter: ratelimit.New(),
		Logger:  l,
	}

	fetchers := make(map[models.Source]adapter.Fetcher)
	if cfg.Sources.Stooq.Enabled {
		fetchers[models.SourceStooq] = stooq.New(deps, cfg.Sources.Stooq)
	}
	if cfg.Sources.Yahoo.Enabled {
		fetchers[models.SourceYahoo] = yahoo.New(deps, cfg.Sources.Yahoo)
	}
	if cfg.Sources.FRED.Enabled {
		fetchers[models.SourceFRED] = fred.New(deps, cfg.Sources.FRED)
	}
	if cfg.Sources.ECB.Enabled {
		fetchers[models.SourceECB] = ecb.New(deps, cfg.Sources.ECB)
	}
	if cfg.Sources.CoinGecko.Enabled {
		fetchers[models.SourceCoinGecko] = coingecko.New(deps, cfg.Sources.CoinGecko)
	}
	if cfg.Sources.GDELT.Enabled {
		fetchers[models.SourceGDELT] = gdelt.New(deps, cfg.Sources.GDELT)
	}
	if cfg.Sources.Finnhub.Enabled {
		fetchers[models.SourceFinnhub] = finnhub.New(deps, cfg.Sources.Finnhub)
	}
	return fetchers
}

// ProvideUniverse builds the versioned scoring universe from config. Members
// are daily equity series from the primary bar source.
func ProvideUniverse(cfg *config.Config) models.Universe {
	u := models.Universe{
		Name:    cfg.Analytics.Universe.Name,
		Version: cfg.Analytics.Universe.Version,
	}
	for _, sym := range cfg.Analytics.Universe.Symbols {
		u.Members = append(u.Members, models.SeriesKey{
			Instrument: models.NewInstrumentKey(sym, models.AssetEquity, cfg.Sources.Stooq.Venue),
			Source:     models.SourceStooq,
		})
	}
	return u
}

// ProvideEngine creates the derived-analytics engine.
func ProvideEngine(store *internalrepo.CHStore, cache *icache.Domain, rec repository.Metrics, l *logger.Logger, cfg *config.Config, universe models.Universe) *analytics.Engine {
	engineCfg := analytics.Config{
		VolWindow:      cfg.Analytics.VolWindow,
		MomentumWindow: cfg.Analytics.MomentumWindow,
		VaRWindow:      cfg.Analytics.VaRWindow,
		VaRConfidence:  cfg.Analytics.VaRConfidence,
	}
	if cfg.Analytics.CorrBenchmark != "" {
		engineCfg.Benchmark = models.SeriesKey{
			Instrument: models.NewInstrumentKey(cfg.Analytics.CorrBenchmark, models.AssetEquity, cfg.Sources.Stooq.Venue),
			Source:     models.SourceStooq,
		}
	}
	return analytics.NewEngine(store, cache, rec, l, engineCfg, universe)
}

// ProvideRegistry creates the empty status registry; the app warms it from
// the run trail on startup.
func ProvideRegistry() *status.Registry {
	return status.NewRegistry()
}

// ProvideBus selects the bar-event transport. Direct mode recomputes on the
// ingest goroutine; kafka mode publishes to the change-feed topic and leaves
// recomputation to the consumer.
func ProvideBus(cfg *config.Config, engine *analytics.Engine, l *logger.Logger) (repository.Bus, error) {
	if cfg.Bus.Type == "kafka" {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
			pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
			pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return usecase.NewKafkaBus(producer, cfg.Kafka.Topic), nil
	}
	return usecase.NewDirectBus(engine, l), nil
}

// ProvideBarEventsConsumer creates the Kafka change-feed consumer for
// bus.type=kafka, nil otherwise.
func ProvideBarEventsConsumer(cfg *config.Config, engine *analytics.Engine, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Bus.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewBarEventsHandler(cfg.Kafka.Topic, engine))
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.LoggingHook(func(topic, traceID string, err error) {
			l.Error("bar event handling failed",
				logger.String("topic", topic),
				logger.String("trace_id", traceID),
				logger.Error(err))
		}),
	))
	return consumer, nil
}

// ProvideReviewQueue creates the Redis publisher malformed payloads go to for
// manual review. Nil without Redis; the orchestrator then only logs them.
func ProvideReviewQueue(redisCache *pkgcache.RedisCache, l *logger.Logger) queue.QueueService {
	if redisCache == nil {
		return nil
	}
	pub := queue.NewRedisPublisher(l, redisCache.Client(), queue.WithKeyPrefix("bloompull:review"))
	// ship deduped warn/error records through the same publisher
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          "aggregated_logs",
		Publisher:      pub,
	})
	return pub
}

// ProvidePipeline creates the fetch-normalize-commit pipeline.
func ProvidePipeline(fetchers map[models.Source]adapter.Fetcher, store *internalrepo.CHStore, cache *icache.Domain, bus repository.Bus, l *logger.Logger) *usecase.IngestPipeline {
	return usecase.NewIngestPipeline(fetchers, store, cache, bus, l)
}

// ProvideSchedules turns enabled source configs into cadence schedules.
func ProvideSchedules(cfg *config.Config) []orchestrator.Schedule {
	var out []orchestrator.Schedule

	add := func(src models.Source, sc config.SourceConfig, class models.AssetClass, macro bool) {
		if !sc.Enabled || sc.Cadence <= 0 {
			return
		}
		tpl := models.Scope{Source: src, Venue: sc.Venue}
		if macro {
			tpl.MacroIDs = sc.SeriesIDs
		} else {
			tpl.Class = class
			tpl.Symbols = sc.Symbols
		}
		out = append(out, orchestrator.Schedule{
			Source:         src,
			Cadence:        sc.Cadence,
			MaxConcurrency: sc.MaxConcurrency,
			Template:       tpl,
		})
	}

	add(models.SourceStooq, cfg.Sources.Stooq, models.AssetEquity, false)
	add(models.SourceYahoo, cfg.Sources.Yahoo, models.AssetEquity, false)
	add(models.SourceFRED, cfg.Sources.FRED, "", true)
	add(models.SourceECB, cfg.Sources.ECB, "", true)
	add(models.SourceCoinGecko, cfg.Sources.CoinGecko, models.AssetCrypto, false)
	add(models.SourceGDELT, cfg.Sources.GDELT, "", true) // query-driven, no symbol scope
	add(models.SourceFinnhub, cfg.Sources.Finnhub, models.AssetEquity, false)
	return out
}

// ProvideOrchestrator creates the scheduler and worker pool.
func ProvideOrchestrator(cfg *config.Config, pipeline *usecase.IngestPipeline, store *internalrepo.CHStore, registry *status.Registry, rec repository.Metrics, review queue.QueueService, l *logger.Logger, schedules []orchestrator.Schedule) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		Workers:      cfg.Orchestrator.Workers,
		MaxAttempts:  cfg.Orchestrator.MaxAttempts,
		BackoffBase:  cfg.Orchestrator.BackoffBase,
		BackoffMax:   cfg.Orchestrator.BackoffMax,
		BackfillDays: cfg.Orchestrator.BackfillDays,
		ReviewTopic:  cfg.Queue.ReviewTopic,
	}, pipeline, store, registry, rec, review, l, schedules)
}

// ProvideRefresh creates the refresh use case over the orchestrator.
func ProvideRefresh(orch *orchestrator.Orchestrator, cfg *config.Config) *usecase.Refresh {
	return usecase.NewRefresh(orch, cfg.Orchestrator.BackfillDays)
}

// ProvideRefreshConsumer creates the Redis queue consumer for externally
// enqueued refresh requests. Nil without Redis.
func ProvideRefreshConsumer(cfg *config.Config, redisCache *pkgcache.RedisCache, refresh *usecase.Refresh, l *logger.Logger) *queue.RedisQueue {
	if redisCache == nil || cfg.Queue.RefreshTopic == "" {
		return nil
	}
	job := usecase.NewRefreshJob(refresh, cfg.Queue.RefreshTopic, l)
	return queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryInterval,
	}, redisCache.Client(), []queue.Job{job})
}

// ProvideMarketData creates the read-surface use case.
func ProvideMarketData(store *internalrepo.CHStore, cache *icache.Domain, engine *analytics.Engine, registry *status.Registry, l *logger.Logger) *usecase.MarketData {
	return usecase.NewMarketData(store, cache, engine, registry, l)
}

// ProvideStatusStream creates the websocket health pusher.
func ProvideStatusStream(registry *status.Registry, cfg *config.Config, l *logger.Logger) *api.StatusStream {
	return api.NewStatusStream(registry, cfg.Status.PushInterval, l)
}

// ProvideHandler creates the Echo route handler.
func ProvideHandler(l *logger.Logger, md *usecase.MarketData, refresh *usecase.Refresh, ws *api.StatusStream) *api.MarketDataHandler {
	return api.NewMarketDataHandler(l, md, refresh, ws)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	orch *orchestrator.Orchestrator,
	consumer *pkgkafka.Consumer,
	refreshQueue *queue.RedisQueue,
	bus repository.Bus,
	store *internalrepo.CHStore,
	registry *status.Registry,
	handler *api.MarketDataHandler,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, orch, consumer, refreshQueue, bus, store, registry, handler, chClient)
}
