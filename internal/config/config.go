package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"stock-sync/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ProviderConfig covers the upstream market-data API.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	MaxCalls           int           `mapstructure:"max_calls"`
	RateWindow         time.Duration `mapstructure:"rate_window"`
	FetchWorkers       int           `mapstructure:"fetch_workers"`
	QueueCapacity      int           `mapstructure:"queue_capacity"`
	CatalogueBatchSize int           `mapstructure:"catalogue_batch_size"`
	UpsertBatchSize    int           `mapstructure:"upsert_batch_size"`
	FetchDelay         time.Duration `mapstructure:"fetch_delay"`
	QuotaBackoff       time.Duration `mapstructure:"quota_backoff"`
	FinancePacing      time.Duration `mapstructure:"finance_pacing"`
	FinanceDailyCap    int           `mapstructure:"finance_daily_cap"`
	RecheckAge         time.Duration `mapstructure:"recheck_age"`
	MaxRetries         int           `mapstructure:"max_retries"`
	Jobs               []string      `mapstructure:"jobs"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// SchedulerConfig governs the run-loop cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines failure notification routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	NotifyOnSuccess bool           `mapstructure:"notify_on_success"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stocksync")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("provider.request_timeout", "15s")
	v.SetDefault("provider.user_agent", "stocksync/1.0")

	v.SetDefault("sync.max_calls", 300)
	v.SetDefault("sync.rate_window", "1m")
	v.SetDefault("sync.fetch_workers", 5)
	v.SetDefault("sync.queue_capacity", 5)
	v.SetDefault("sync.catalogue_batch_size", 100)
	v.SetDefault("sync.upsert_batch_size", 1000)
	v.SetDefault("sync.fetch_delay", "200ms")
	v.SetDefault("sync.quota_backoff", "30s")
	v.SetDefault("sync.finance_pacing", "1s")
	v.SetDefault("sync.finance_daily_cap", 300)
	v.SetDefault("sync.recheck_age", "72h")
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.jobs", []string{"daily_quotes", "finance_incremental"})

	v.SetDefault("checkpoint.backend", "postgres")
	v.SetDefault("checkpoint.dir", "checkpoints")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73746f63))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_on_success", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Sync.MaxCalls <= 0 {
		return fmt.Errorf("sync.max_calls must be greater than zero")
	}
	if c.Sync.RateWindow <= 0 {
		return fmt.Errorf("sync.rate_window must be greater than zero")
	}
	if c.Sync.FetchWorkers <= 0 {
		return fmt.Errorf("sync.fetch_workers must be greater than zero")
	}
	if c.Sync.QueueCapacity <= 0 {
		return fmt.Errorf("sync.queue_capacity must be greater than zero")
	}
	if c.Sync.CatalogueBatchSize <= 0 {
		return fmt.Errorf("sync.catalogue_batch_size must be greater than zero")
	}
	if c.Sync.UpsertBatchSize <= 0 {
		return fmt.Errorf("sync.upsert_batch_size must be greater than zero")
	}
	if c.Sync.FinanceDailyCap <= 0 {
		return fmt.Errorf("sync.finance_daily_cap must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Checkpoint.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("checkpoint.backend must be file or postgres, got %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend == "file" && c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint.dir is required for the file backend")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
