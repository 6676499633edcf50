package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "WALLSYNC"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "wallsync.db"
	defaultLogLevel      = "info"
	defaultFeedCapacity  = 100
	defaultFlushInterval = 150 * time.Millisecond
	defaultLoadJitterMax = 800 * time.Millisecond
)

// AppConfig captures runtime configuration for the wall API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	RedisAddress   string
	AuthSigningKey string
	LogLevel       string
	FeedCapacity   int
	FeedFlushEvery time.Duration
	FeedLoadJitter time.Duration
	AllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("feed.capacity", defaultFeedCapacity)
	configViper.SetDefault("feed.flush_interval", defaultFlushInterval)
	configViper.SetDefault("feed.load_jitter", defaultLoadJitterMax)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		RedisAddress:   configViper.GetString("redis.address"),
		AuthSigningKey: configViper.GetString("auth.signing_secret"),
		LogLevel:       configViper.GetString("log.level"),
		FeedCapacity:   configViper.GetInt("feed.capacity"),
		FeedFlushEvery: configViper.GetDuration("feed.flush_interval"),
		FeedLoadJitter: configViper.GetDuration("feed.load_jitter"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.FeedCapacity <= 0 {
		return fmt.Errorf("feed.capacity must be positive")
	}
	if c.FeedFlushEvery <= 0 {
		return fmt.Errorf("feed.flush_interval must be positive")
	}
	if c.FeedLoadJitter < 0 {
		return fmt.Errorf("feed.load_jitter must not be negative")
	}
	return nil
}
