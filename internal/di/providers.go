package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"BlockTrader/internal/domain/repository"
	"BlockTrader/internal/handler/api"
	mid "BlockTrader/internal/middleware"
	internalrepo "BlockTrader/internal/repository"
	"BlockTrader/internal/service/broker"
	stagemetrics "BlockTrader/internal/service/metrics"
	"BlockTrader/internal/service/ratelimit"
	"BlockTrader/internal/service/stream"
	"BlockTrader/internal/services/market"
	"BlockTrader/internal/services/orderblock"
	"BlockTrader/internal/services/risk"
	"BlockTrader/internal/usecase"
	"BlockTrader/pkg/cache"
	pkgch "BlockTrader/pkg/clickhouse"
	"BlockTrader/pkg/config"
	xhttp "BlockTrader/pkg/http"
	"BlockTrader/pkg/http/middleware"
	pkgkafka "BlockTrader/pkg/kafka"
	applogger "BlockTrader/pkg/logger"
	"BlockTrader/pkg/metrics"
	"BlockTrader/pkg/server"
	"BlockTrader/pkg/util"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	stagemetrics.Register()
	return metrics.New()
}

// ProvideContracts loads the built-in registry with YAML overrides applied.
func ProvideContracts(cfg *config.Config) (*market.Registry, error) {
	overrides := make([]market.ContractSpec, 0, len(cfg.Contracts))
	for sym, c := range cfg.Contracts {
		overrides = append(overrides, market.ContractSpec{
			Symbol:           strings.ToUpper(sym),
			TickSize:         c.TickSize,
			TickValue:        c.TickValue,
			Volatility:       c.Volatility,
			MinPosition:      c.MinPosition,
			MaxPosition:      c.MaxPosition,
			DefaultPosition:  c.DefaultPosition,
			MinStopTicks:     c.MinStopTicks,
			MaxStopTicks:     c.MaxStopTicks,
			DefaultStopTicks: c.DefaultStopTicks,
			MinPatternScore:  c.MinPatternScore,
			MinVolumeRatio:   c.MinVolumeRatio,
			PrimaryTF:        c.PrimaryTF,
			HigherTF:         c.HigherTF,
			EntryTF:          c.EntryTF,
			MinPrice:         c.MinPrice,
			MaxPrice:         c.MaxPrice,
		})
	}
	reg, err := market.NewRegistry(overrides...)
	if err != nil {
		return nil, fmt.Errorf("contract registry: %w", err)
	}
	return reg, nil
}

// ProvideContract resolves the traded symbol's spec.
func ProvideContract(cfg *config.Config, reg *market.Registry) (market.ContractSpec, error) {
	spec, err := reg.Lookup(cfg.Trading.Symbol)
	if err != nil {
		return market.ContractSpec{}, fmt.Errorf("trading.symbol: %w", err)
	}
	return spec, nil
}

// ProvideTimeframes returns primary, entry and higher timeframes. Trading
// config wins over the contract defaults; blanks and duplicates are dropped.
func ProvideTimeframes(cfg *config.Config, spec market.ContractSpec) []repository.Timeframe {
	pick := func(v, def string) string {
		if v != "" {
			return v
		}
		return def
	}
	raw := []string{
		pick(cfg.Trading.PrimaryTimeframe, spec.PrimaryTF),
		pick(cfg.Trading.EntryTimeframe, spec.EntryTF),
		pick(cfg.Trading.HigherTimeframe, spec.HigherTF),
	}
	out := make([]repository.Timeframe, 0, len(raw))
	seen := make(map[repository.Timeframe]bool, len(raw))
	for i, s := range raw {
		tf := repository.Timeframe(s)
		if !repository.IsValidTimeframe(tf) {
			if i == 0 {
				tf = repository.DefaultTimeframe()
			} else {
				continue
			}
		}
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out
}

func ProvideValidator(cfg *config.Config, reg *market.Registry) *market.Validator {
	return market.NewValidator(reg, cfg.Pattern.MaxPriceChange, cfg.Pattern.AvgWindow)
}

func patternParams(cfg *config.Config, spec market.ContractSpec) orderblock.Params {
	return orderblock.Params{
		MaxAge:            cfg.Pattern.MaxAgeCandles,
		BodyMultiplier:    cfg.Pattern.BodyMultiplier,
		StrengthCap:       cfg.Pattern.StrengthCap,
		VolumeMultiplier:  cfg.Pattern.VolumeMultiplier,
		Tolerance:         spec.Tolerance(cfg.Pattern.Tolerance),
		ConfluencePct:     cfg.Pattern.ConfluencePct,
		ConfluenceWeights: cfg.Scoring.ConfluenceWeights,
		TrendWeights:      cfg.Scoring.TrendWeights,
	}
}

func ProvideDetector(cfg *config.Config, spec market.ContractSpec) *orderblock.Detector {
	return orderblock.NewDetector(patternParams(cfg, spec))
}

func ProvideScorer(cfg *config.Config, spec market.ContractSpec, l *applogger.Logger) *orderblock.Scorer {
	return orderblock.NewScorer(patternParams(cfg, spec), l)
}

func ProvidePlanner(cfg *config.Config, spec market.ContractSpec) *risk.Planner {
	return risk.NewPlanner(risk.PlannerParams{
		Contract:       spec,
		TP1:            cfg.Targets.TP1,
		ATRStops:       cfg.Trading.ATRStops,
		ATRMultiplier:  cfg.Trading.ATRMultiplier,
		ScaleOutRatios: []float64{cfg.Targets.TP1, cfg.Targets.TP2, cfg.Targets.Runner},
		ScaleOutSplit:  cfg.Targets.Split,
	})
}

func ProvideGateParams(cfg *config.Config) (risk.GateParams, error) {
	return risk.NewGateParams(cfg.Risk.DailyLossLimit, cfg.Risk.MaxConsecutiveLosses,
		cfg.Risk.SessionStart, cfg.Risk.SessionEnd, cfg.Risk.NewsBlackoutStart, cfg.Risk.Timezone)
}

func ProvideClock() util.Clock { return util.SystemClock{} }

func ProvideState(gp risk.GateParams, clock util.Clock) *risk.State {
	return risk.NewState(gp.Location, clock.Now())
}

func ProvideGate(gp risk.GateParams, state *risk.State) *risk.Gate {
	return risk.NewGate(gp, state)
}

func ProvideBreaker(cfg *config.Config, l *applogger.Logger) *risk.CircuitBreaker {
	cb := risk.NewCircuitBreaker(cfg.Risk.BreakerThreshold, cfg.Risk.BreakerRecovery)
	cb.OnTrip(func(failures int) {
		l.Error("circuit breaker opened",
			applogger.Int("failures", failures),
			applogger.Duration("recovery", cfg.Risk.BreakerRecovery),
		)
	})
	return cb
}

// ProvideCache returns Redis behind a short-lived memory layer when Redis is
// enabled, otherwise a process-local memory cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		l.Info("redis disabled, using in-memory cache")
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Redis.LocalSize*4),
			cache.WithMemoryCleanup(cfg.Redis.LocalCleanup),
		), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Redis.LocalSize),
		cache.WithLayeredMemoryTTL(cfg.Redis.LocalTTL),
	), nil
}

func ProvideStateStore(c cache.Service) repository.StateStore {
	return internalrepo.NewRedisStateStore(c)
}

// ProvideClickHouseClient connects and applies the schema. Returns nil when
// ClickHouse is neither enabled nor the candle source.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled && cfg.Source != "clickhouse" {
		return nil, nil
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideCandleStore(ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHCandleStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHCandleStore(ch)
	s.SetLogger(l)
	return s
}

func ProvideDecisionStore(ch *pkgch.Client) *internalrepo.CHDecisionStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHDecisionStore(ch)
}

// ProvideTradeJournal is nil without ClickHouse.
func ProvideTradeJournal(ds *internalrepo.CHDecisionStore) repository.TradeJournal {
	if ds == nil {
		return nil
	}
	return ds
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
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
	return producer, nil
}

// ProvideReportPublisher streams reports to Kafka and attaches the alert
// collector to the logger.
func ProvideReportPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) *internalrepo.KafkaReportPublisher {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportsTopic)
	l.AttachCollector(&applogger.CollectionConfig{
		FlushInterval: 30 * time.Second,
		Topic:         cfg.Kafka.AlertsTopic,
		Publisher:     pub,
	})
	return pub
}

// ProvideKafkaConsumer creates the execution events consumer, or nil when
// Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(l))
	return consumer, nil
}

// ProvidePaperBroker is built only when source or sink is "paper".
func ProvidePaperBroker(cfg *config.Config, spec market.ContractSpec, tfs []repository.Timeframe, clock util.Clock, l *applogger.Logger) *broker.PaperBroker {
	if cfg.Source != "paper" && cfg.Sink != "paper" {
		return nil
	}
	return broker.NewPaperBroker(broker.PaperConfig{
		StartPrice:  cfg.Paper.StartPrice,
		Step:        cfg.Paper.Step,
		Seed:        cfg.Paper.Seed,
		FillLatency: cfg.Paper.FillLatency,
	}, spec, tfs[0], clock, l.With(applogger.String("component", "paper")))
}

// ProvideRESTBroker is built only when source or sink is "rest".
func ProvideRESTBroker(cfg *config.Config, l *applogger.Logger) *broker.RESTBroker {
	if cfg.Source != "rest" && cfg.Sink != "rest" {
		return nil
	}
	return broker.NewRESTBroker(broker.RESTConfig{
		BaseURL:   cfg.Broker.BaseURL,
		APIKey:    cfg.Broker.APIKey,
		AccountID: cfg.Broker.AccountID,
		Timeout:   cfg.Broker.Timeout,
		Retries:   cfg.Broker.Retries,
	}, l.With(applogger.String("component", "broker")))
}

// ProvideCandleBuilder is built only for source "stream". Completed candles
// go to ClickHouse when stream.persist_candles is set.
func ProvideCandleBuilder(cfg *config.Config, tfs []repository.Timeframe, v *market.Validator,
	store *internalrepo.CHCandleStore, m repository.Metrics, l *applogger.Logger) *usecase.CandleBuilder {
	if cfg.Source != "stream" {
		return nil
	}
	var writer repository.CandleWriter
	if cfg.Stream.PersistCandles && store != nil {
		writer = store
	}
	return usecase.NewCandleBuilder(cfg.Trading.Symbol, tfs, v, writer, m, l.With(applogger.String("component", "candles")))
}

func ProvideTickCollector(cfg *config.Config, b *usecase.CandleBuilder, m repository.Metrics, l *applogger.Logger) *usecase.TickCollector {
	if b == nil {
		return nil
	}
	st := stream.New(cfg.Stream.APIKey, cfg.Stream.URL, []string{cfg.Trading.Symbol},
		cfg.Stream.ReconnectDelay, cfg.Stream.PingInterval,
		stream.WithBufferSize(cfg.Stream.BufferSize),
		stream.WithLogger(l.With(applogger.String("component", "stream"))),
	)
	pipe := mid.NewTickPipeline(b, m,
		mid.WithMaxRPS(cfg.Stream.MaxTicksPerSecond),
		mid.WithBufferSize(cfg.Stream.BufferSize),
	)
	return usecase.NewTickCollector(st, b, pipe, m, l)
}

// ProvideMarketDataSource selects the candle source. Remote sources are
// read through the candle cache.
func ProvideMarketDataSource(cfg *config.Config, paper *broker.PaperBroker, rest *broker.RESTBroker,
	store *internalrepo.CHCandleStore, builder *usecase.CandleBuilder, c cache.Service,
	m repository.Metrics, l *applogger.Logger) (repository.MarketDataSource, error) {
	switch cfg.Source {
	case "paper":
		return paper, nil
	case "stream":
		return builder, nil
	case "rest":
		return usecase.NewCachedSource(rest, c, cfg.Redis.CandleTTL, m, l), nil
	case "clickhouse":
		if store == nil {
			return nil, fmt.Errorf("source clickhouse: client not configured")
		}
		return usecase.NewCachedSource(store, c, cfg.Redis.CandleTTL, m, l), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func ProvideOrderSink(cfg *config.Config, paper *broker.PaperBroker, rest *broker.RESTBroker) (repository.OrderSink, error) {
	switch cfg.Sink {
	case "paper":
		return paper, nil
	case "rest":
		return rest, nil
	}
	return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
}

func ProvideReportHub(l *applogger.Logger) *api.ReportHub {
	return api.NewReportHub(l.With(applogger.String("component", "ws")))
}

// ProvideReportSink fans reports out to the websocket hub and whichever of
// Kafka and ClickHouse are configured.
func ProvideReportSink(hub *api.ReportHub, pub *internalrepo.KafkaReportPublisher, ds *internalrepo.CHDecisionStore) repository.ReportSink {
	f := internalrepo.NewReportFanout(hub)
	if pub != nil {
		f.Add(pub)
	}
	if ds != nil {
		f.Add(ds)
	}
	return f
}

func ProvidePlanBook() *usecase.PlanBook { return usecase.NewPlanBook(0) }

func ProvideEngineParams(cfg *config.Config, spec market.ContractSpec, tfs []repository.Timeframe) usecase.EngineParams {
	minScore := cfg.Scoring.MinScore
	if minScore <= 0 {
		minScore = spec.MinPatternScore
	}
	return usecase.EngineParams{
		Symbol:            cfg.Trading.Symbol,
		Timeframes:        tfs,
		MTF:               cfg.Trading.MTF,
		CandleCount:       cfg.Trading.CandleCount,
		LoopDelay:         cfg.Trading.LoopDelay,
		IdleDelay:         cfg.Trading.IdleDelay,
		Cooldown:          cfg.Trading.Cooldown,
		FetchTimeout:      cfg.Trading.FetchTimeout,
		SubmitTimeout:     cfg.Trading.SubmitTimeout,
		MinScore:          minScore,
		ATRPeriod:         cfg.Trading.ATRPeriod,
		DynamicThresholds: cfg.Scoring.DynamicThresholds,
	}
}

func ProvideEngine(
	p usecase.EngineParams,
	source repository.MarketDataSource,
	sink repository.OrderSink,
	reports repository.ReportSink,
	store repository.StateStore,
	m repository.Metrics,
	v *market.Validator,
	d *orderblock.Detector,
	sc *orderblock.Scorer,
	pl *risk.Planner,
	g *risk.Gate,
	st *risk.State,
	cb *risk.CircuitBreaker,
	plans *usecase.PlanBook,
	clock util.Clock,
	l *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(p, usecase.EngineDeps{
		Source:    source,
		Sink:      sink,
		Reports:   reports,
		Store:     store,
		Metrics:   m,
		Validator: v,
		Detector:  d,
		Scorer:    sc,
		Planner:   pl,
		Gate:      g,
		State:     st,
		Breaker:   cb,
		Analyzer:  market.NewAnalyzer(p.ATRPeriod),
		Plans:     plans,
		Clock:     clock,
		Logger:    l.With(applogger.String("component", "engine")),
	})
}

func ProvideExecutionHandler(cfg *config.Config, st *risk.State, plans *usecase.PlanBook, journal repository.TradeJournal,
	store repository.StateStore, m repository.Metrics, l *applogger.Logger) *usecase.ExecutionHandler {
	return usecase.NewExecutionHandler(cfg.Kafka.ExecutionsTopic, cfg.Trading.Symbol, st, plans, journal, store, m,
		l.With(applogger.String("component", "executions")))
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, engine *usecase.Engine,
	exec *usecase.ExecutionHandler, hub *api.ReportHub) *xhttp.Server {
	auth := middleware.JWTAuth(middleware.JWTConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.Issuer,
		Logger: l,
	})
	bot := api.NewBotHandler(l, engine, exec, auth)
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORSOrigins...))
	}
	if cfg.Server.RatePerSecond > 0 {
		opts = append(opts, xhttp.WithRateLimiter(ratelimit.New(cfg.Server.RateBurst, cfg.Server.RatePerSecond)))
	}
	return xhttp.NewServer([]xhttp.Handler{bot, hub}, opts...)
}

// ProvideApp assembles the application and connects execution feedback:
// paper fills call the handler directly, Kafka events arrive through the consumer.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.Engine,
	httpServer *xhttp.Server,
	hub *api.ReportHub,
	exec *usecase.ExecutionHandler,
	paper *broker.PaperBroker,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	pub *internalrepo.KafkaReportPublisher,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	if paper != nil {
		paper.OnExecution(exec.Apply)
	}
	app := server.New(cfg, l, engine, httpServer, hub)
	if collector != nil {
		app.SetCollector(collector)
	}
	if consumer != nil {
		app.SetConsumer(consumer, exec)
	}
	app.AddCloser("cache", c)
	if ch != nil {
		app.AddCloser("clickhouse", ch)
	}
	if pub != nil {
		app.AddCloser("kafka_producer", pub)
	}
	return app
}
