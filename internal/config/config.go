package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig                  `mapstructure:"app"`
	Server      ServerConfig               `mapstructure:"server"`
	Log         LogConfig                  `mapstructure:"log"`
	DB          DBConfig                   `mapstructure:"db"`
	Cron        CronConfig                 `mapstructure:"cron"`
	Sync        SyncConfig                 `mapstructure:"sync"`
	Retry       RetryConfig                `mapstructure:"retry"`
	Breaker     BreakerConfig              `mapstructure:"breaker"`
	Credentials CredentialsConfig          `mapstructure:"credentials"`
	Connectors  map[string]ConnectorConfig `mapstructure:"connectors"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	APIToken string `mapstructure:"api_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	RawSchema       string        `mapstructure:"raw_schema"`
}

// CronConfig holds one schedule per service. Services without an entry use Default.
type CronConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Default  string            `mapstructure:"default"`
	Services map[string]string `mapstructure:"services"`
}

func (c CronConfig) Spec(service string) string {
	if spec := strings.TrimSpace(c.Services[service]); spec != "" {
		return spec
	}
	return strings.TrimSpace(c.Default)
}

type SyncConfig struct {
	LookbackDays       int           `mapstructure:"lookback_days"`
	MarginDays         int           `mapstructure:"margin_days"`
	BatchSize          int           `mapstructure:"batch_size"`
	MastersConcurrency int           `mapstructure:"masters_concurrency"`
	ChunkDelay         time.Duration `mapstructure:"chunk_delay"`
	RunTimeout         time.Duration `mapstructure:"run_timeout"`
}

type RetryConfig struct {
	DefaultRetryAfter   time.Duration `mapstructure:"default_retry_after"`
	MaxRetryAfter       time.Duration `mapstructure:"max_retry_after"`
	MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries"`
	ServerErrorDelay    time.Duration `mapstructure:"server_error_delay"`
	ServerErrorRetries  int           `mapstructure:"server_error_retries"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type CredentialsConfig struct {
	RefreshThreshold  time.Duration `mapstructure:"refresh_threshold"`
	EncryptionKey     string        `mapstructure:"encryption_key"`
	EncryptionPrevKey string        `mapstructure:"encryption_prev_key"`
}

// ConnectorConfig overrides provider endpoints and pacing for one service.
type ConnectorConfig struct {
	Disabled      bool          `mapstructure:"disabled"`
	BaseURL       string        `mapstructure:"base_url"`
	AuxURL        string        `mapstructure:"aux_url"`
	TokenURL      string        `mapstructure:"token_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	ChunkDays     int           `mapstructure:"chunk_days"`
	PageSize      int           `mapstructure:"page_size"`
	Databases     []string      `mapstructure:"databases"`
	APIVersion    string        `mapstructure:"api_version"`
}

// Load reads path (unless envOnly) and LS_* environment variables. A .env
// file in the working directory is loaded first when present.
func Load(path string, envOnly bool) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("LS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.timezone", "Asia/Tokyo")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.api_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.raw_schema", "raw")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.default", "0 0 */6 * * *")

	v.SetDefault("sync.lookback_days", 7)
	v.SetDefault("sync.margin_days", 1)
	v.SetDefault("sync.batch_size", 1000)
	v.SetDefault("sync.masters_concurrency", 4)
	v.SetDefault("sync.chunk_delay", "1s")
	v.SetDefault("sync.run_timeout", "2h")

	v.SetDefault("retry.default_retry_after", "1s")
	v.SetDefault("retry.max_retry_after", "5m")
	v.SetDefault("retry.max_rate_limit_retries", 30)
	v.SetDefault("retry.server_error_delay", "1s")
	v.SetDefault("retry.server_error_retries", 1)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "0s")
	v.SetDefault("breaker.timeout", "60s")

	v.SetDefault("credentials.refresh_threshold", "5m")
	v.SetDefault("credentials.encryption_key", "")
	v.SetDefault("credentials.encryption_prev_key", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	// LS_API_TOKEN is accepted as a shorthand for LS_SERVER_API_TOKEN.
	if t := strings.TrimSpace(os.Getenv("LS_API_TOKEN")); t != "" {
		cfg.Server.APIToken = t
	}
	return cfg, nil
}

// Location resolves app.timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if tz := strings.TrimSpace(c.App.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

func (c Config) Connector(service string) ConnectorConfig {
	return c.Connectors[service]
}
