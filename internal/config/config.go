package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"merchant-governance/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
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
	Retention       time.Duration `mapstructure:"retention"`
}

// DatasetConfig selects where merchant records come from.
type DatasetConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// Dataset sources.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// SchedulerConfig governs re-evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Workers         int           `mapstructure:"workers"`
}

// AlertingConfig defines governance guard thresholds and routing.
type AlertingConfig struct {
	Enabled            bool           `mapstructure:"enabled"`
	ImpactThresholdPct float64        `mapstructure:"impact_threshold_pct"`
	MaxRestrictedPct   float64        `mapstructure:"max_restricted_pct"`
	Channels           []string       `mapstructure:"channels"`
	Telegram           TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig controls the Prometheus endpoint of the run command.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOVSIM")
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

	if len(cfg.Governance.Policies) == 0 {
		cfg.Governance.Policies = DefaultPolicies()
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
	v.SetDefault("app.name", "govsim")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("dataset.source", SourceCSV)
	v.SetDefault("dataset.path", "merchants.csv")

	v.SetDefault("governance.active_policy", "ota")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x676f7673))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.workers", 0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.impact_threshold_pct", 5.0)
	v.SetDefault("alerting.max_restricted_pct", 20.0)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("export.max_rows", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "2160h")
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
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention cannot be negative")
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers cannot be negative")
	}
	switch c.Dataset.Source {
	case SourceCSV:
		if c.Dataset.Path == "" {
			return fmt.Errorf("dataset.path is required for the csv source")
		}
	case SourcePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres source")
		}
	default:
		return fmt.Errorf("dataset.source must be %q or %q, got %q", SourceCSV, SourcePostgres, c.Dataset.Source)
	}
	if c.Alerting.ImpactThresholdPct < 0 {
		return fmt.Errorf("alerting.impact_threshold_pct cannot be negative")
	}
	if c.Alerting.MaxRestrictedPct < 0 || c.Alerting.MaxRestrictedPct > 100 {
		return fmt.Errorf("alerting.max_restricted_pct must be within [0,100]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return c.Governance.Validate()
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
