// Package config loads the ingestion core's configuration from an optional
// YAML file overlaid with environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ingestion-and-analysis core.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Riot      RiotConfig      `mapstructure:"riot"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres or sqlite
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Path     string `mapstructure:"path"` // sqlite file path

	MaxIdleConns int `mapstructure:"max_idle_conns"`
	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// DSN builds the driver-appropriate connection string.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RiotConfig struct {
	BaseURLSuffix  string        `mapstructure:"base_url_suffix"` // ".api.riotgames.com"
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`

	// Region (e.g. "americas") is the one regional route every job uses for
	// account and match calls. Platform (e.g. "NA1") is loaded but not read
	// by the jobs: platform-routed calls use the platform stored on each
	// player row.
	Platform string `mapstructure:"platform"`
	Region   string `mapstructure:"region"`

	// APIKeyEnvVar names the environment variable the key is read from at
	// startup. The key itself never lives in config files (spec.md §6
	// Settings provider).
	APIKeyEnvVar string `mapstructure:"api_key_env_var"`
}

// RateLimitConfig carries the safety margins applied below the server's
// published limits (§4.1/§6 of SPEC_FULL.md).
type RateLimitConfig struct {
	AppLimitMargin         float64 `mapstructure:"app_limit_margin"`
	MethodLimitMargin      float64 `mapstructure:"method_limit_margin"`
	AppRequestsPer2Min     int     `mapstructure:"app_requests_per_2min"`
	AppRequestsPerSec      int     `mapstructure:"app_requests_per_sec"`
	MethodRequestsPer10Sec int     `mapstructure:"method_requests_per_10sec"`
}

type SchedulerConfig struct {
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	DefaultJobTimeout   time.Duration `mapstructure:"default_job_timeout"`
}

// ScoringConfig carries the nine factor weights (§4.8). Weights must sum to
// 1.0 ± 0.01 — validated by scoring.NewEngine, not here.
type ScoringConfig struct {
	AnalysisWindow  int               `mapstructure:"analysis_window"`
	AnalysisVersion string            `mapstructure:"analysis_version"`
	Weights         map[string]float64 `mapstructure:"weights"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration from ./configs/config.yaml (if present) and
// environment variables, falling back to defaults otherwise.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "smurfcore.db")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 50)

	viper.SetDefault("riot.base_url_suffix", ".api.riotgames.com")
	viper.SetDefault("riot.request_timeout", "30s")
	viper.SetDefault("riot.max_retries", 3)
	viper.SetDefault("riot.platform", "NA1")
	viper.SetDefault("riot.region", "americas")
	viper.SetDefault("riot.api_key_env_var", "RIOT_API_KEY")

	viper.SetDefault("rate_limit.app_limit_margin", 0.8)
	viper.SetDefault("rate_limit.method_limit_margin", 0.9)
	viper.SetDefault("rate_limit.app_requests_per_2min", 100)
	viper.SetDefault("rate_limit.app_requests_per_sec", 20)
	viper.SetDefault("rate_limit.method_requests_per_10sec", 20)

	viper.SetDefault("scheduler.shutdown_grace_period", "30s")
	viper.SetDefault("scheduler.default_job_timeout", "10m")

	viper.SetDefault("scoring.analysis_window", 25)
	viper.SetDefault("scoring.analysis_version", "v1")
	viper.SetDefault("scoring.weights", map[string]float64{
		"rank_discrepancy":        0.20,
		"win_rate":                0.18,
		"performance_trends":      0.15,
		"win_rate_trends":         0.10,
		"role_performance":        0.09,
		"rank_progression":        0.09,
		"account_level":           0.08,
		"performance_consistency": 0.08,
		"kda_analysis":            0.03,
	})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
