package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type SourceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Cadence        time.Duration `yaml:"cadence"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RatePerSec     float64       `yaml:"rate_per_sec"`
	RateBurst      int           `yaml:"rate_burst"`
	Symbols        []string      `yaml:"symbols"`
	SeriesIDs      []string      `yaml:"series_ids"`
	Venue          string        `yaml:"venue"`
	Query          string        `yaml:"query"`
	VsCurrency     string        `yaml:"vs_currency"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	// Bus decides how bar-update events reach the analytics engine: "direct"
	// recomputes in-process, "kafka" goes through the change-feed topic.
	Bus struct {
		Type string `yaml:"type"`
	} `yaml:"bus"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		MemorySize int           `yaml:"memory_size"`
		BarsTTL    time.Duration `yaml:"bars_ttl"`
		MetricsTTL time.Duration `yaml:"metrics_ttl"`
		MetaTTL    time.Duration `yaml:"meta_ttl"`
	} `yaml:"cache"`
	Queue struct {
		ReviewTopic   string        `yaml:"review_topic"`
		RefreshTopic  string        `yaml:"refresh_topic"`
		Workers       int           `yaml:"workers"`
		MaxRetries    int           `yaml:"max_retries"`
		RetryInterval time.Duration `yaml:"retry_interval"`
	} `yaml:"queue"`
	Sources struct {
		Stooq     SourceConfig `yaml:"stooq"`
		Yahoo     SourceConfig `yaml:"yahoo"`
		FRED      SourceConfig `yaml:"fred"`
		ECB       SourceConfig `yaml:"ecb"`
		CoinGecko SourceConfig `yaml:"coingecko"`
		GDELT     SourceConfig `yaml:"gdelt"`
		Finnhub   SourceConfig `yaml:"finnhub"`
	} `yaml:"sources"`
	Orchestrator struct {
		Workers       int           `yaml:"workers"`
		MaxAttempts   int           `yaml:"max_attempts"`
		BackoffBase   time.Duration `yaml:"backoff_base"`
		BackoffMax    time.Duration `yaml:"backoff_max"`
		BackfillDays  int           `yaml:"backfill_days"`
		RetryInterval time.Duration `yaml:"retry_interval"`
	} `yaml:"orchestrator"`
	Analytics struct {
		VolWindow      int     `yaml:"vol_window"`
		MomentumWindow int     `yaml:"momentum_window"`
		VaRWindow      int     `yaml:"var_window"`
		VaRConfidence  float64 `yaml:"var_confidence"`
		CorrBenchmark  string  `yaml:"corr_benchmark"`
		Universe       struct {
			Name    string   `yaml:"name"`
			Version int      `yaml:"version"`
			Symbols []string `yaml:"symbols"`
		} `yaml:"universe"`
	} `yaml:"analytics"`
	Status struct {
		PushInterval time.Duration `yaml:"push_interval"`
	} `yaml:"status"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
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

	if v := os.Getenv("FRED_API_KEY"); v != "" {
		c.Sources.FRED.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Sources.Finnhub.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Sources.Stooq.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BUS"); v != "" {
		c.Bus.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Bus.Type == "" {
		return fmt.Errorf("bus.type is required")
	}
	if c.Bus.Type != "direct" && c.Bus.Type != "kafka" {
		return fmt.Errorf("bus.type must be 'direct' or 'kafka', got '%s'", c.Bus.Type)
	}
	if c.Bus.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when bus.type is 'kafka'")
	}
	enabled := 0
	for _, sc := range []SourceConfig{
		c.Sources.Stooq, c.Sources.Yahoo, c.Sources.FRED, c.Sources.ECB,
		c.Sources.CoinGecko, c.Sources.GDELT, c.Sources.Finnhub,
	} {
		if sc.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	if c.Sources.FRED.Enabled && c.Sources.FRED.APIKey == "" {
		return fmt.Errorf("sources.fred.api_key is required when fred is enabled")
	}
	if c.Sources.Finnhub.Enabled && c.Sources.Finnhub.APIKey == "" {
		return fmt.Errorf("sources.finnhub.api_key is required when finnhub is enabled")
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("orchestrator.workers must be positive")
	}
	if c.Analytics.VolWindow < 2 {
		return fmt.Errorf("analytics.vol_window must be at least 2")
	}
	return nil
}
