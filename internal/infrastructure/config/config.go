package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"go-event-stream/internal/infrastructure/logger"
)

const (
	EnvAddr     = "SSE_ADDR"
	EnvLogLevel = "SSE_LOG_LEVEL"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Stream  StreamConfig  `yaml:"stream"`
	Console ConsoleConfig `yaml:"console"`
	Client  ClientConfig  `yaml:"client"`
	Log     logger.Config `yaml:"log"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

type StreamConfig struct {
	Path         string        `yaml:"path"`
	TickInterval time.Duration `yaml:"tick_interval"`
	GracePeriod  time.Duration `yaml:"grace_period"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ClientConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Stream: StreamConfig{
			Path:         "/sse",
			TickInterval: time.Second,
			GracePeriod:  1200 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		Console: ConsoleConfig{Enabled: true},
		Client: ClientConfig{
			URL:            "http://localhost:8080/sse",
			ReconnectDelay: 2 * time.Second,
			ConnectTimeout: 5 * time.Second,
			RequestTimeout: 10 * time.Minute,
		},
		Log: *logger.NewDefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Server.Addr = addr
	}
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		level, err := logger.ParseLevel(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		c.Log.Level = level
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Stream.Path == "" || c.Stream.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("stream.path %q must start with /", c.Stream.Path))
	}
	if c.Stream.TickInterval <= 0 {
		errs = append(errs, errors.New("stream.tick_interval must be positive"))
	}
	if c.Stream.GracePeriod < 0 {
		errs = append(errs, errors.New("stream.grace_period must not be negative"))
	}
	if c.Client.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("client.reconnect_delay must be positive"))
	}
	return errors.Join(errs...)
}
