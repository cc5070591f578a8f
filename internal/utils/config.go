package utils

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PostgresConfig describes the connection to the API key store. Host may be
// a full postgres:// DSN, in which case the other fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config holds the full service configuration, loaded from YAML.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost         string        `yaml:"redis_host"`
		CoverCacheDB      int           `yaml:"redis_cover_db"`
		RateLimitDB       int           `yaml:"redis_rate_db"`
		CoverCacheEnabled bool          `yaml:"cover_cache_enabled"`
		CoverCacheTTL     time.Duration `yaml:"cover_cache_ttl"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		// APIKey is an optional static key, typically injected via the
		// API_KEY environment variable. Postgres-managed keys take
		// precedence when both are configured.
		APIKey   string         `yaml:"api_key"`
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	Cover struct {
		Width          int           `yaml:"width"`
		Height         int           `yaml:"height"`
		FontPath       string        `yaml:"font_path"`
		FontSize       float64       `yaml:"font_size"`
		BarWidthRatio  float64       `yaml:"bar_width_ratio"`
		BarHeightRatio float64       `yaml:"bar_height_ratio"`
		BarMargin      int           `yaml:"bar_margin"`
		TextInset      int           `yaml:"text_inset"`
		ImageDir       string        `yaml:"image_dir"`
		ImageTTL       time.Duration `yaml:"image_ttl"`
		RenderPoolSize int           `yaml:"render_pool_size"`
		TimeoutSecs    int           `yaml:"timeout_secs"`
	} `yaml:"cover"`

	Limits struct {
		MaxCoverBytes int `yaml:"max_cover_bytes"`
	} `yaml:"limits"`
}

// AppConfig is the process-wide configuration, set by LoadConfig.
var AppConfig Config

// LoadConfig reads the configuration from CONFIG_PATH (default ./config.yaml)
// and stores it in AppConfig. A missing file is not fatal: the service can
// run entirely on defaults plus environment overrides inside a container.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom reads the configuration from an explicit path.
func LoadConfigFrom(path string) Config {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			panic("invalid config file " + path + ": " + uerr.Error())
		}
	}

	applyDefaults(&cfg)

	AppConfig = cfg
	return cfg
}

// GetConfig returns the current process-wide configuration.
func GetConfig() Config {
	return AppConfig
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Cache.CoverCacheTTL <= 0 {
		cfg.Cache.CoverCacheTTL = 24 * time.Hour
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Cover.Width <= 0 {
		cfg.Cover.Width = 600
	}
	if cfg.Cover.Height <= 0 {
		cfg.Cover.Height = 600
	}
	if cfg.Cover.FontSize <= 0 {
		cfg.Cover.FontSize = 60
	}
	if cfg.Cover.BarWidthRatio <= 0 || cfg.Cover.BarWidthRatio > 1 {
		cfg.Cover.BarWidthRatio = 0.9
	}
	if cfg.Cover.BarHeightRatio <= 0 || cfg.Cover.BarHeightRatio > 1 {
		cfg.Cover.BarHeightRatio = 0.15
	}
	if cfg.Cover.BarMargin <= 0 {
		cfg.Cover.BarMargin = 20
	}
	if cfg.Cover.TextInset <= 0 {
		cfg.Cover.TextInset = 20
	}
	if cfg.Cover.ImageDir == "" {
		cfg.Cover.ImageDir = os.TempDir()
	}
	if cfg.Cover.TimeoutSecs <= 0 {
		cfg.Cover.TimeoutSecs = 10
	}
	if cfg.Limits.MaxCoverBytes <= 0 {
		cfg.Limits.MaxCoverBytes = 5 * 1024 * 1024
	}
}
