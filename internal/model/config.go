package model

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address (e.g., ":3000").
	Addr string `mapstructure:"addr" yaml:"addr"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MaxBodyBytes caps the size of a mutation request body.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// StoreConfig selects and locates the record store backend.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Path is the SQLite database file. Ignored by the memory backend.
	Path string `mapstructure:"path" yaml:"path"`
}

// HubConfig tunes push-channel fan-out.
type HubConfig struct {
	// QueueDepth is the per-subscriber outbound queue length. When full the
	// oldest queued snapshot is dropped.
	QueueDepth   int           `mapstructure:"queue_depth" yaml:"queue_depth"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// FallbackConfig tunes the server-sent snapshot stream.
type FallbackConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// AuthConfig guards the mutation API. An empty token disables auth.
type AuthConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
}

// GatewayConfig tunes mutation handling.
type GatewayConfig struct {
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl" yaml:"idempotency_ttl"`
}

// ClientConfig holds the terminal client's connection and recovery settings.
type ClientConfig struct {
	ServerURL          string        `mapstructure:"server_url" yaml:"server_url"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BackoffInitial     time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax         time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	MaxConnectAttempts int           `mapstructure:"max_connect_attempts" yaml:"max_connect_attempts"`
	FailureWindow      time.Duration `mapstructure:"failure_window" yaml:"failure_window"`
	FailureThreshold   int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	LogFile            string        `mapstructure:"log_file" yaml:"log_file"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration shared by the server
// and the terminal client.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Hub      HubConfig      `mapstructure:"hub" yaml:"hub"`
	Fallback FallbackConfig `mapstructure:"fallback" yaml:"fallback"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Client   ClientConfig   `mapstructure:"client" yaml:"client"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// envPrefix namespaces environment overrides, e.g. WORKCAL_SERVER_ADDR.
const envPrefix = "WORKCAL"

// ConfigDir returns ~/.config/workcal, falling back to the working directory.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "workcal")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/workcal/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// setDefaults registers a default for every key so that missing keys, env
// overrides and flags all resolve through the same viper instance.
func setDefaults(v *viper.Viper) {
	dir := ConfigDir()

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.max_body_bytes", 64*1024)

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", filepath.Join(dir, "workcal.db"))

	v.SetDefault("hub.queue_depth", 4)
	v.SetDefault("hub.write_timeout", 5*time.Second)
	v.SetDefault("hub.ping_interval", 25*time.Second)

	v.SetDefault("fallback.interval", 10*time.Second)

	v.SetDefault("auth.token", "")

	v.SetDefault("gateway.idempotency_ttl", 2*time.Minute)

	v.SetDefault("client.server_url", "http://localhost:3000")
	v.SetDefault("client.poll_interval", 5*time.Second)
	v.SetDefault("client.backoff_initial", 500*time.Millisecond)
	v.SetDefault("client.backoff_max", 30*time.Second)
	v.SetDefault("client.max_connect_attempts", 3)
	v.SetDefault("client.failure_window", time.Minute)
	v.SetDefault("client.failure_threshold", 3)
	v.SetDefault("client.handshake_timeout", 5*time.Second)
	v.SetDefault("client.log_file", filepath.Join(dir, "client.log"))

	v.SetDefault("display.theme", "default")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// DefaultAppConfig returns the configuration used when no file is present.
func DefaultAppConfig() *AppConfig {
	v := viper.New()
	setDefaults(v)
	cfg := &AppConfig{}
	// Defaults are well-typed, so decoding them cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// then applies WORKCAL_* environment variables and any flags in fs that were
// explicitly set. A missing file is not an error.
func LoadConfig(path string, fs *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// bindFlags binds every flag whose name maps onto a config key. Flag names use
// hyphens where keys use dots: --server-addr binds server.addr.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	known := make(map[string]bool)
	for _, k := range v.AllKeys() {
		known[k] = true
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.Replace(f.Name, "-", ".", 1)
		key = strings.ReplaceAll(key, "-", "_")
		if !known[key] || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("binding flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Validate rejects settings the server or client cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	positive := map[string]time.Duration{
		"fallback.interval":      c.Fallback.Interval,
		"hub.write_timeout":      c.Hub.WriteTimeout,
		"hub.ping_interval":      c.Hub.PingInterval,
		"client.poll_interval":   c.Client.PollInterval,
		"client.backoff_initial": c.Client.BackoffInitial,
		"client.backoff_max":     c.Client.BackoffMax,
		"client.failure_window":  c.Client.FailureWindow,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	if c.Hub.QueueDepth < 1 {
		return fmt.Errorf("hub.queue_depth must be at least 1, got %d", c.Hub.QueueDepth)
	}
	if c.Client.BackoffMax < c.Client.BackoffInitial {
		return fmt.Errorf("client.backoff_max must not be below client.backoff_initial")
	}
	if c.Client.MaxConnectAttempts < 1 {
		return fmt.Errorf("client.max_connect_attempts must be at least 1")
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("store", cfg.Store)
	v.Set("hub", cfg.Hub)
	v.Set("fallback", cfg.Fallback)
	v.Set("gateway", cfg.Gateway)
	v.Set("client", cfg.Client)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// NewLogger builds the slog logger selected by the log section: a JSON or
// text handler writing to w at the configured level.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
