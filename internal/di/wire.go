//go:build wireinject
// +build wireinject

package di

import (
	"BlockTrader/pkg/config"
	"BlockTrader/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideReportPublisher,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,
		ProvideCache,

		// Domain services
		ProvideContracts,
		ProvideContract,
		ProvideTimeframes,
		ProvideValidator,
		ProvideDetector,
		ProvideScorer,
		ProvidePlanner,
		ProvideGateParams,
		ProvideState,
		ProvideGate,
		ProvideBreaker,

		// Repositories and collaborators
		ProvideCandleStore,
		ProvideDecisionStore,
		ProvideTradeJournal,
		ProvideStateStore,
		ProvidePaperBroker,
		ProvideRESTBroker,
		ProvideCandleBuilder,
		ProvideTickCollector,
		ProvideMarketDataSource,
		ProvideOrderSink,
		ProvideReportHub,
		ProvideReportSink,

		// Use cases
		ProvidePlanBook,
		ProvideEngineParams,
		ProvideEngine,
		ProvideExecutionHandler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
