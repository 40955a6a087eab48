// Package config provides Viper-based configuration loading for the duel
// relay server and client.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/duel/internal/game/dice"
)

// RelayConfig holds relay server settings.
type RelayConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// AllowedOrigins lists the Origin header values permitted to open sockets.
	// A single "*" entry allows every origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// BufferLimit caps the number of replayable messages held for an absent peer.
	BufferLimit int `mapstructure:"buffer_limit"`
	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// JoinTimeout bounds how long a /ws connection may stay silent before
	// sending its join message.
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// StorageConfig selects the session persistence backend.
type StorageConfig struct {
	// Backend is one of "memory", "redis", "postgres".
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for session snapshots.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// ReconnectConfig controls the edge transport's linear backoff.
type ReconnectConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// ClientConfig holds player client settings.
type ClientConfig struct {
	// Transport is one of "synthetic", "relay", "edge", "mesh".
	Transport string `mapstructure:"transport"`
	// RelayURL is the ws:// or wss:// base URL of the relay server.
	RelayURL string `mapstructure:"relay_url"`
	// CatalogURL is the base URL of a remote character catalog; empty uses the
	// bundled catalog.
	CatalogURL string `mapstructure:"catalog_url"`
	// ConnectTimeout bounds every connection attempt.
	ConnectTimeout time.Duration   `mapstructure:"connect_timeout"`
	Reconnect      ReconnectConfig `mapstructure:"reconnect"`
	// ICEServers are the stun: or turn: URLs used by the mesh transport's
	// peer link.
	ICEServers []string `mapstructure:"ice_servers"`
}

// SyntheticConfig holds settings for the in-process opponent.
type SyntheticConfig struct {
	// ThinkingDelay is a dice expression rolled in milliseconds, e.g. "1d1500+400".
	ThinkingDelay string `mapstructure:"thinking_delay"`
	// Eager selects the opponent's move ahead of the player's choice.
	Eager bool `mapstructure:"eager"`
	// StrategyScript is an optional Lua file defining choose(moves, state).
	StrategyScript string `mapstructure:"strategy_script"`
}

// Config is the top-level application configuration.
type Config struct {
	Relay     RelayConfig     `mapstructure:"relay"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Client    ClientConfig    `mapstructure:"client"`
	Synthetic SyntheticConfig `mapstructure:"synthetic"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateClient(c.Client); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSynthetic(c.Synthetic); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

var originPattern = regexp.MustCompile(`^(\*|https?://[^\s/]+)$`)

func validateRelay(r RelayConfig) error {
	var errs []string
	if r.Port < 1 || r.Port > 65535 {
		errs = append(errs, fmt.Sprintf("relay.port must be 1-65535, got %d", r.Port))
	}
	if len(r.AllowedOrigins) == 0 {
		errs = append(errs, "relay.allowed_origins must not be empty")
	}
	for _, o := range r.AllowedOrigins {
		if !originPattern.MatchString(o) {
			errs = append(errs, fmt.Sprintf("relay.allowed_origins entry %q must be \"*\" or scheme://host[:port]", o))
		}
	}
	if r.BufferLimit < 1 {
		errs = append(errs, fmt.Sprintf("relay.buffer_limit must be >= 1, got %d", r.BufferLimit))
	}
	if r.WriteTimeout < 0 {
		errs = append(errs, "relay.write_timeout must not be negative")
	}
	if r.JoinTimeout <= 0 {
		errs = append(errs, "relay.join_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateStorage(c Config) error {
	switch c.Storage.Backend {
	case "memory":
		return nil
	case "redis":
		return validateRedis(c.Redis)
	case "postgres":
		return validateDatabase(c.Database)
	default:
		return fmt.Errorf("storage.backend must be one of [memory, redis, postgres], got %q", c.Storage.Backend)
	}
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if r.SessionTTL <= 0 {
		errs = append(errs, "redis.session_ttl must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateClient(c ClientConfig) error {
	var errs []string
	validTransports := map[string]bool{"synthetic": true, "relay": true, "edge": true, "mesh": true}
	if !validTransports[c.Transport] {
		errs = append(errs, fmt.Sprintf("client.transport must be one of [synthetic, relay, edge, mesh], got %q", c.Transport))
	}
	if c.Transport != "synthetic" && !strings.HasPrefix(c.RelayURL, "ws://") && !strings.HasPrefix(c.RelayURL, "wss://") {
		errs = append(errs, fmt.Sprintf("client.relay_url must start with ws:// or wss://, got %q", c.RelayURL))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, "client.connect_timeout must be positive")
	}
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("client.reconnect.max_attempts must be >= 1, got %d", c.Reconnect.MaxAttempts))
	}
	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		errs = append(errs, "client.reconnect requires 0 < base_delay <= max_delay")
	}
	for _, u := range c.ICEServers {
		if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
			errs = append(errs, fmt.Sprintf("client.ice_servers entries must be stun:, turn: or turns: URLs, got %q", u))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSynthetic(s SyntheticConfig) error {
	if s.ThinkingDelay == "" {
		return errors.New("synthetic.thinking_delay must not be empty")
	}
	if _, err := dice.ParseDelay(s.ThinkingDelay); err != nil {
		return fmt.Errorf("synthetic.thinking_delay: %w", err)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with DUEL_ prefix
	v.SetEnvPrefix("DUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewViper returns a Viper instance carrying every default, for callers that
// bind flags before loading.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.host", "0.0.0.0")
	v.SetDefault("relay.port", 8787)
	v.SetDefault("relay.allowed_origins", []string{"http://localhost:5173", "http://localhost:8787"})
	v.SetDefault("relay.buffer_limit", 32)
	v.SetDefault("relay.write_timeout", "10s")
	v.SetDefault("relay.join_timeout", "10s")
	v.SetDefault("relay.shutdown_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "duel")
	v.SetDefault("database.password", "duel")
	v.SetDefault("database.name", "duel")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.session_ttl", "24h")

	v.SetDefault("client.transport", "synthetic")
	v.SetDefault("client.relay_url", "ws://localhost:8787")
	v.SetDefault("client.catalog_url", "")
	v.SetDefault("client.connect_timeout", "10s")
	v.SetDefault("client.reconnect.base_delay", "1s")
	v.SetDefault("client.reconnect.max_delay", "5s")
	v.SetDefault("client.reconnect.max_attempts", 5)
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("synthetic.thinking_delay", "1d1500+400")
	v.SetDefault("synthetic.eager", false)
	v.SetDefault("synthetic.strategy_script", "")
}
