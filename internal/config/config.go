package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SyncConfig configures the plan synchronization run.
type SyncConfig struct {
	RegionsFile        string   `yaml:"regions_file" mapstructure:"regions_file"`
	RegionDelayMs      int      `yaml:"region_delay_ms" mapstructure:"region_delay_ms"`
	TimeoutMins        int      `yaml:"timeout_mins" mapstructure:"timeout_mins"`
	RateEpsilon        float64  `yaml:"rate_epsilon" mapstructure:"rate_epsilon"`
	CompareTier        string   `yaml:"compare_tier" mapstructure:"compare_tier"`
	EstimatorSeed      uint64   `yaml:"estimator_seed" mapstructure:"estimator_seed"`
	EstimatorProviders []string `yaml:"estimator_providers" mapstructure:"estimator_providers"`
	LogFile            string   `yaml:"log_file" mapstructure:"log_file"`
}

// SourceConfig configures the external plan source.
type SourceConfig struct {
	Mode                    string  `yaml:"mode" mapstructure:"mode"`
	BaseURL                 string  `yaml:"base_url" mapstructure:"base_url"`
	FixturesDir             string  `yaml:"fixtures_dir" mapstructure:"fixtures_dir"`
	UserAgent               string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs             int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec          float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// NotionConfig holds the review queue credentials.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// MonitoringConfig configures session alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLANSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 3600)
	v.SetDefault("sync.region_delay_ms", 2000)
	v.SetDefault("sync.timeout_mins", 30)
	v.SetDefault("sync.rate_epsilon", 0.1)
	v.SetDefault("sync.compare_tier", "1000")
	v.SetDefault("sync.estimator_seed", 0)
	v.SetDefault("sync.estimator_providers", []string{
		"TXU Energy", "Reliant", "Gexa Energy", "Direct Energy", "Green Mountain Energy", "Frontier Utilities",
	})
	v.SetDefault("sync.log_file", "plansync.log")
	v.SetDefault("source.mode", "http")
	v.SetDefault("source.base_url", "http://api.powertochoose.org/api/PowerToChoose/plans")
	v.SetDefault("source.fixtures_dir", "testdata/fixtures")
	v.SetDefault("source.user_agent", "plansync/1.0 (+catalog maintenance)")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.requests_per_sec", 1.0)
	v.SetDefault("source.max_attempts", 2)
	v.SetDefault("source.initial_backoff_ms", 1000)
	v.SetDefault("source.circuit_failure_threshold", 3)
	v.SetDefault("source.circuit_reset_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "sync", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "sync", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	if c.Sync.RateEpsilon < 0 {
		problems = append(problems, "sync.rate_epsilon must be >= 0")
	}
	if c.Sync.RegionDelayMs < 0 {
		problems = append(problems, "sync.region_delay_ms must be >= 0")
	}
	if c.Sync.TimeoutMins <= 0 {
		problems = append(problems, "sync.timeout_mins must be > 0")
	}
	switch c.Sync.CompareTier {
	case "500", "1000", "2000":
	default:
		problems = append(problems, "sync.compare_tier must be 500, 1000 or 2000")
	}

	switch c.Source.Mode {
	case "http":
		if c.Source.BaseURL == "" {
			problems = append(problems, "source.base_url is required for http mode")
		}
	case "file":
		if c.Source.FixturesDir == "" {
			problems = append(problems, "source.fixtures_dir is required for file mode")
		}
	default:
		problems = append(problems, "source.mode must be http or file")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
