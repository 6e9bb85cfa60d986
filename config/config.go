package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fundingboard/internal/scheduler"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config/config.yml"

type Config struct {
	// Environment is taken from APP_ENV, never from the file.
	Environment string `yaml:"-"`

	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sources   SourcesConfig   `yaml:"sources"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Cache     CacheConfig     `yaml:"cache"`
	Generator GeneratorConfig `yaml:"generator"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level          string           `yaml:"level"`
	Format         string           `yaml:"format"`
	Output         string           `yaml:"output"`
	MaxAge         int              `yaml:"max_age"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

type SourcesConfig struct {
	SnapshotURI   string        `yaml:"snapshot_uri"`
	HistoryURI    string        `yaml:"history_uri"`
	HistoryFormat string        `yaml:"history_format"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	KeepStale     bool          `yaml:"keep_stale"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
}

type DashboardConfig struct {
	Address       string          `yaml:"address"`
	LabelTimezone string          `yaml:"label_timezone"`
	SessionTTL    time.Duration   `yaml:"session_ttl"`
	CookieName    string          `yaml:"cookie_name"`
	ChartWidth    int             `yaml:"chart_width"`
	ChartHeight   int             `yaml:"chart_height"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Websocket     WebsocketConfig `yaml:"websocket"`

	// LogHistory and MetricsHistory bound the in-memory buffers served by
	// /api/logs and /api/metrics.
	LogHistory     int `yaml:"log_history"`
	MetricsHistory int `yaml:"metrics_history"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type WebsocketConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type ScheduleConfig struct {
	ReloadSpec       string `yaml:"reload_spec"`
	SessionSweepSpec string `yaml:"session_sweep_spec"`
}

type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	TTL      time.Duration `yaml:"ttl"`
	MaxItems int           `yaml:"max_items"`
	Redis    RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

type GeneratorConfig struct {
	OutputPath    string `yaml:"output_path"`
	UploadURI     string `yaml:"upload_uri"`
	RetentionDays int    `yaml:"retention_days"`
	PruneHistory  bool   `yaml:"prune_history"`
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{Name: "fundingboard", Version: "dev"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Sources: SourcesConfig{
			HistoryFormat: "auto",
			FetchTimeout:  20 * time.Second,
			KeepStale:     true,
		},
		Dashboard: DashboardConfig{
			Address:        ":8080",
			LabelTimezone:  "Local",
			SessionTTL:     24 * time.Hour,
			CookieName:     "fundingboard_session",
			ChartWidth:     960,
			ChartHeight:    360,
			RateLimit:      RateLimitConfig{RequestsPerSecond: 10, BurstSize: 20},
			Websocket:      WebsocketConfig{Enabled: true, PingInterval: 30 * time.Second},
			LogHistory:     200,
			MetricsHistory: 200,
		},
		Schedule: ScheduleConfig{
			ReloadSpec:       scheduler.DefaultReloadSpec,
			SessionSweepSpec: "0 */10 * * * *",
		},
		Cache: CacheConfig{
			Backend:  "memory",
			TTL:      time.Hour,
			MaxItems: 256,
			Redis:    RedisConfig{Addr: "localhost:6379", PoolSize: 10, Prefix: "fundingboard:"},
		},
		Generator: GeneratorConfig{
			OutputPath:    "data/funding_snapshot.json",
			RetentionDays: 5,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.Environment = Environment()
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Sources.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Sources.S3.SecretAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Sources.S3.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("SNAPSHOT_URI"); v != "" {
		config.Sources.SnapshotURI = strings.TrimSpace(v)
	}
	if v := os.Getenv("HISTORY_URI"); v != "" {
		config.Sources.HistoryURI = strings.TrimSpace(v)
	}
	if v := os.Getenv("DASHBOARD_ADDRESS"); v != "" {
		config.Dashboard.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Cache.Redis.Addr = strings.TrimSpace(v)
	}

	config.Sources.SnapshotURI = strings.TrimSpace(config.Sources.SnapshotURI)
	config.Sources.HistoryURI = strings.TrimSpace(config.Sources.HistoryURI)
	config.Cache.Backend = strings.ToLower(strings.TrimSpace(config.Cache.Backend))
	config.Sources.HistoryFormat = strings.ToLower(strings.TrimSpace(config.Sources.HistoryFormat))
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Sources.SnapshotURI == "" {
		return fmt.Errorf("sources.snapshot_uri is required")
	}
	if cfg.Sources.HistoryURI == "" {
		return fmt.Errorf("sources.history_uri is required")
	}
	switch cfg.Sources.HistoryFormat {
	case "", "auto", "csv", "parquet":
	default:
		return fmt.Errorf("sources.history_format '%s' must be auto, csv or parquet", cfg.Sources.HistoryFormat)
	}
	if cfg.Sources.FetchTimeout <= 0 {
		return fmt.Errorf("sources.fetch_timeout must be greater than 0")
	}
	for _, uri := range []string{cfg.Sources.SnapshotURI, cfg.Sources.HistoryURI, cfg.Generator.UploadURI} {
		if err := validateURI(uri); err != nil {
			return err
		}
	}

	if cfg.Dashboard.Address == "" {
		return fmt.Errorf("dashboard.address is required")
	}
	if _, err := time.LoadLocation(cfg.Dashboard.LabelTimezone); err != nil {
		return fmt.Errorf("dashboard.label_timezone '%s' is invalid: %w", cfg.Dashboard.LabelTimezone, err)
	}
	if cfg.Dashboard.RateLimit.RequestsPerSecond < 0 || cfg.Dashboard.RateLimit.BurstSize < 0 {
		return fmt.Errorf("dashboard.rate_limit values must not be negative")
	}
	if cfg.Dashboard.RateLimit.RequestsPerSecond > 0 && cfg.Dashboard.RateLimit.BurstSize == 0 {
		return fmt.Errorf("dashboard.rate_limit.burst_size must be greater than 0 when rate limiting is enabled")
	}

	if err := scheduler.ValidateSpec(cfg.Schedule.ReloadSpec); err != nil {
		return fmt.Errorf("schedule.reload_spec: %w", err)
	}
	if cfg.Schedule.SessionSweepSpec != "" {
		if err := scheduler.ValidateSpec(cfg.Schedule.SessionSweepSpec); err != nil {
			return fmt.Errorf("schedule.session_sweep_spec: %w", err)
		}
	}

	switch cfg.Cache.Backend {
	case "memory", "none":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend '%s' must be memory, redis or none", cfg.Cache.Backend)
	}

	if cfg.Generator.RetentionDays < 0 {
		return fmt.Errorf("generator.retention_days must not be negative")
	}

	if Strict(cfg.Environment) {
		if cfg.Dashboard.RateLimit.RequestsPerSecond == 0 {
			return fmt.Errorf("dashboard.rate_limit must be enabled in %s", cfg.Environment)
		}
		if cfg.Dashboard.LabelTimezone == "" || cfg.Dashboard.LabelTimezone == "Local" {
			return fmt.Errorf("dashboard.label_timezone must be set explicitly in %s", cfg.Environment)
		}
	}

	return nil
}

func validateURI(uri string) error {
	if !strings.HasPrefix(strings.ToLower(uri), "s3://") {
		return nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("uri '%s' is invalid: %w", uri, err)
	}
	if !isValidS3Bucket(u.Host) {
		return fmt.Errorf("s3 bucket '%s' in '%s' is invalid", u.Host, uri)
	}
	if strings.TrimPrefix(u.Path, "/") == "" {
		return fmt.Errorf("s3 uri '%s' has no object key", uri)
	}
	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
