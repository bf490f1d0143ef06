//go:build wireinject
// +build wireinject

package di

import (
	"BloomPull/pkg/config"
	"BloomPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,

		// Storage and cache
		ProvideStore,
		ProvideCacheService,
		ProvideDomainCache,

		// Ingestion
		ProvideFetchers,
		ProvidePipeline,
		ProvideSchedules,
		ProvideReviewQueue,
		ProvideRegistry,
		ProvideOrchestrator,

		// Analytics
		ProvideUniverse,
		ProvideEngine,
		ProvideBus,
		ProvideBarEventsConsumer,

		// Use cases and HTTP surface
		ProvideRefresh,
		ProvideRefreshConsumer,
		ProvideMarketData,
		ProvideStatusStream,
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
