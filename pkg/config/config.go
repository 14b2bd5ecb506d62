package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"BlockTrader/pkg/logger"
	"BlockTrader/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		// RateBurst and RatePerSecond bound requests per client; zero disables.
		RateBurst     float64 `yaml:"rate_burst" default:"20"`
		RatePerSecond float64 `yaml:"rate_per_second" default:"5"`
		// CORSOrigins lists dashboard origins; empty allows any.
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log       logger.Config       `yaml:"log"`
	Trading   Trading             `yaml:"trading"`
	Risk      Risk                `yaml:"risk"`
	Pattern   Pattern             `yaml:"pattern"`
	Scoring   Scoring             `yaml:"scoring"`
	Targets   Targets             `yaml:"targets"`
	Contracts map[string]Contract `yaml:"contracts"`

	// Source selects the MarketDataSource: clickhouse, rest, stream or paper.
	Source string `yaml:"source" default:"paper"`
	// Sink selects the OrderSink: paper or rest.
	Sink string `yaml:"sink" default:"paper"`

	Broker struct {
		BaseURL   string        `yaml:"base_url"`
		APIKey    string        `yaml:"api_key"`
		AccountID string        `yaml:"account_id"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
		Retries   int           `yaml:"retries" default:"3"`
	} `yaml:"broker"`
	Stream struct {
		URL               string        `yaml:"url"`
		APIKey            string        `yaml:"api_key"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"20s"`
		MaxTicksPerSecond int           `yaml:"max_ticks_per_second" default:"50"`
		BufferSize        int           `yaml:"buffer_size" default:"2000"`
		PersistCandles    bool          `yaml:"persist_candles"`
	} `yaml:"stream"`
	Paper struct {
		StartPrice  float64       `yaml:"start_price" default:"2050"`
		Step        float64       `yaml:"step" default:"0.8"`
		Seed        int64         `yaml:"seed" default:"42"`
		FillLatency time.Duration `yaml:"fill_latency" default:"500ms"`
	} `yaml:"paper"`
	Kafka struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		ReportsTopic    string   `yaml:"reports_topic" default:"decision_reports"`
		ExecutionsTopic string   `yaml:"executions_topic" default:"execution_events"`
		AlertsTopic     string   `yaml:"alerts_topic" default:"alerts"`
		RequiredAcks    int      `yaml:"required_acks" default:"-1"`
		Compression     string   `yaml:"compression" default:"gzip"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID string `yaml:"group_id" default:"blocktrader"`
			// OffsetReset applies when the group has no committed offset: earliest or latest.
			OffsetReset string        `yaml:"offset_reset" default:"earliest"`
			Workers     int           `yaml:"workers" default:"1"`
			BufferSize  int           `yaml:"buffer_size" default:"64"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"blocktrader"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Host      string        `yaml:"host" default:"localhost"`
		Port      int           `yaml:"port" default:"6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix" default:"blocktrader"`
		CandleTTL time.Duration `yaml:"candle_ttl" default:"20s"`

		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
		// Local is the in-process layer in front of Redis, or the whole
		// cache when Redis is disabled.
		LocalSize    int           `yaml:"local_size" default:"256"`
		LocalTTL     time.Duration `yaml:"local_ttl" default:"5s"`
		LocalCleanup time.Duration `yaml:"local_cleanup" default:"1m"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer" default:"blocktrader"`
		TokenTTL  time.Duration `yaml:"token_ttl" default:"24h"`
	} `yaml:"auth"`
}

type Trading struct {
	Symbol           string `yaml:"symbol" default:"MGC"`
	PrimaryTimeframe string `yaml:"primary_timeframe"`
	EntryTimeframe   string `yaml:"entry_timeframe"`
	HigherTimeframe  string `yaml:"higher_timeframe"`
	// MTF scores patterns across primary, entry and higher timeframes.
	MTF           bool          `yaml:"mtf"`
	CandleCount   int           `yaml:"candle_count" default:"100"`
	LoopDelay     time.Duration `yaml:"loop_delay" default:"30s"`
	IdleDelay     time.Duration `yaml:"idle_delay" default:"60s"`
	Cooldown      time.Duration `yaml:"cooldown" default:"300s"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" default:"15s"`
	SubmitTimeout time.Duration `yaml:"submit_timeout" default:"10s"`
	ATRStops      bool          `yaml:"atr_stops"`
	ATRPeriod     int           `yaml:"atr_period" default:"14"`
	ATRMultiplier float64       `yaml:"atr_multiplier" default:"1.5"`
}

type Risk struct {
	DailyLossLimit       float64       `yaml:"daily_loss_limit" default:"800"`
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses" default:"2"`
	SessionStart         string        `yaml:"session_start" default:"16:45"`
	SessionEnd           string        `yaml:"session_end" default:"22:30"`
	NewsBlackoutStart    string        `yaml:"news_blackout_start" default:"22:15"`
	Timezone             string        `yaml:"timezone" default:"UTC"`
	BreakerThreshold     int           `yaml:"breaker_threshold" default:"5"`
	BreakerRecovery      time.Duration `yaml:"breaker_recovery" default:"60s"`
}

type Pattern struct {
	MaxAgeCandles    int     `yaml:"max_age_candles" default:"50"`
	AvgWindow        int     `yaml:"avg_window" default:"20"`
	BodyMultiplier   float64 `yaml:"body_multiplier" default:"1.5"`
	StrengthCap      float64 `yaml:"strength_cap" default:"3"`
	VolumeMultiplier float64 `yaml:"volume_multiplier" default:"1.5"`
	Tolerance        float64 `yaml:"tolerance" default:"0.002"`
	MaxPriceChange   float64 `yaml:"max_price_change" default:"0.05"`
	ConfluencePct    float64 `yaml:"confluence_pct" default:"0.005"`
}

type Scoring struct {
	// MinScore of zero falls back to the contract's min pattern score.
	MinScore          float64            `yaml:"min_score"`
	ConfluenceWeights map[string]float64 `yaml:"confluence_weights" default:"{\"1m\":0.2,\"5m\":0.5,\"15m\":0.3}"`
	TrendWeights      map[string]float64 `yaml:"trend_weights" default:"{\"1m\":0.3,\"5m\":0.5,\"15m\":0.7}"`
	DynamicThresholds bool               `yaml:"dynamic_thresholds"`
}

type Targets struct {
	TP1    float64   `yaml:"tp1" default:"1.0"`
	TP2    float64   `yaml:"tp2" default:"2.0"`
	Runner float64   `yaml:"runner" default:"2.5"`
	Split  []float64 `yaml:"split" default:"[0.5,0.4,0.1]"`
}

// Contract overrides or adds an instrument in the contract registry.
type Contract struct {
	TickSize         float64 `yaml:"tick_size"`
	TickValue        float64 `yaml:"tick_value"`
	Volatility       float64 `yaml:"volatility"`
	MinPosition      int     `yaml:"min_position"`
	MaxPosition      int     `yaml:"max_position"`
	DefaultPosition  int     `yaml:"default_position"`
	MinStopTicks     int     `yaml:"min_stop_ticks"`
	MaxStopTicks     int     `yaml:"max_stop_ticks"`
	DefaultStopTicks int     `yaml:"default_stop_ticks"`
	MinPatternScore  float64 `yaml:"min_pattern_score"`
	MinVolumeRatio   float64 `yaml:"min_volume_ratio"`
	PrimaryTF        string  `yaml:"primary_timeframe"`
	HigherTF         string  `yaml:"higher_timeframe"`
	EntryTF          string  `yaml:"entry_timeframe"`
	MinPrice         float64 `yaml:"min_price"`
	MaxPrice         float64 `yaml:"max_price"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SYMBOL"); v != "" {
		c.Trading.Symbol = strings.ToUpper(v)
	}
	if v := getenv("SOURCE"); v != "" {
		c.Source = v
	}
	if v := getenv("SINK"); v != "" {
		c.Sink = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
		c.Redis.Enabled = true
	}
	if v := getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := getenv("API_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	switch c.Source {
	case "clickhouse", "rest", "stream", "paper":
	default:
		return fmt.Errorf("source must be one of clickhouse, rest, stream, paper; got '%s'", c.Source)
	}
	switch c.Sink {
	case "paper", "rest":
	default:
		return fmt.Errorf("sink must be 'paper' or 'rest', got '%s'", c.Sink)
	}
	if c.Trading.CandleCount < 3 {
		return fmt.Errorf("trading.candle_count must be at least 3")
	}
	if c.Risk.DailyLossLimit <= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be positive")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk.max_consecutive_losses must be positive")
	}
	for name, v := range map[string]string{
		"risk.session_start":       c.Risk.SessionStart,
		"risk.session_end":         c.Risk.SessionEnd,
		"risk.news_blackout_start": c.Risk.NewsBlackoutStart,
	} {
		if _, err := util.ParseClock(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
		return fmt.Errorf("risk.timezone: %w", err)
	}
	if c.Pattern.MaxAgeCandles <= 0 {
		return fmt.Errorf("pattern.max_age_candles must be positive")
	}
	if c.Source == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for source 'clickhouse'")
	}
	if (c.Source == "rest" || c.Sink == "rest") && c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required for rest source/sink")
	}
	if c.Source == "stream" && c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required for source 'stream'")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
