// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Google GoogleConfig `yaml:"google" mapstructure:"google"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Match  MatchConfig  `yaml:"match" mapstructure:"match"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds the Google Geocoding API credential.
type GoogleConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// FetchConfig configures the geocode fetch pipeline.
type FetchConfig struct {
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxConcurrency int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	CachePath      string  `yaml:"cache_path" mapstructure:"cache_path"`
}

// MatchConfig holds the default match settings, adjustable in the shell.
type MatchConfig struct {
	Radius    float64 `yaml:"radius" mapstructure:"radius"`
	Mode      string  `yaml:"mode" mapstructure:"mode"`
	Exclusive bool    `yaml:"exclusive" mapstructure:"exclusive"`
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
	v.SetEnvPrefix("GEOMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The empty api_key default registers the key so the env
	// override is visible to Unmarshal.
	v.SetDefault("google.api_key", "")
	v.SetDefault("fetch.rate_limit", 30.0)
	v.SetDefault("fetch.max_concurrency", 30)
	v.SetDefault("fetch.cache_path", "geomatch.db")
	v.SetDefault("match.radius", 0.25)
	v.SetDefault("match.mode", "left")
	v.SetDefault("match.exclusive", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
