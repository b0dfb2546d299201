package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	Worker   WorkerConfig
	PublicID PublicIDConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// HTTPConfig holds the public API listener settings.
type HTTPConfig struct {
	Addr string
}

// WorkerConfig holds background-worker settings.
type WorkerConfig struct {
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	MaxRetries          int    `mapstructure:"max_retries"`
	NightlySchedule     string `mapstructure:"nightly_schedule"`
}

// PublicIDConfig holds the hashid settings for API-facing identifiers.
// Changing the salt invalidates every id already handed out.
type PublicIDConfig struct {
	Salt string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGER_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledger", "ledger.db"))
	v.SetDefault("http.addr", ":8400")
	v.SetDefault("worker.poll_interval_seconds", 5)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.nightly_schedule", "daily")
	v.SetDefault("publicid.salt", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.PublicID.Salt == "" {
		return Config{}, fmt.Errorf("publicid.salt must be set; public ids are partner-facing and salt changes break them")
	}
	return c, nil
}
