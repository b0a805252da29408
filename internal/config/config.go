// Package config loads the YAML configuration shared by the server binary and
// board clients.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/boardsync/internal/collab/httpapi"
	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/core/presence"
	"github.com/zeusync/boardsync/internal/server"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	LogLevel      string         `json:"log_level" yaml:"log_level"`
	Strategy      string         `json:"strategy" yaml:"strategy"`
	OrderStrategy string         `json:"order_strategy" yaml:"order_strategy"`
	DumpState     bool           `json:"dump_state" yaml:"dump_state"`
	Presence      PresenceConfig `json:"presence" yaml:"presence"`
	Server        ServerConfig   `json:"server" yaml:"server"`
	Client        ClientConfig   `json:"client" yaml:"client"`
}

type PresenceConfig struct {
	StaleAfter    time.Duration `json:"stale_after" yaml:"stale_after"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	Throttle      time.Duration `json:"throttle" yaml:"throttle"`
}

type ServerConfig struct {
	ListenAddr          string        `json:"listen_addr" yaml:"listen_addr"`
	MaxClients          int           `json:"max_clients" yaml:"max_clients"`
	PresenceRate        float64       `json:"presence_rate" yaml:"presence_rate"`
	PresenceBurst       int           `json:"presence_burst" yaml:"presence_burst"`
	ClientTimeout       time.Duration `json:"client_timeout" yaml:"client_timeout"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
}

type ClientConfig struct {
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
}

func Default() Config {
	srv := server.DefaultServerConfig()
	return Config{
		LogLevel:      "info",
		Strategy:      string(model.StrategyLastWriteWins),
		OrderStrategy: string(model.StrategyLastWriteWins),
		Presence: PresenceConfig{
			StaleAfter:    presence.DefaultStaleAfter,
			SweepInterval: presence.DefaultSweepInterval,
			Throttle:      presence.DefaultThrottle,
		},
		Server: ServerConfig{
			ListenAddr:          srv.ListenAddr,
			MaxClients:          srv.MaxClients,
			PresenceRate:        float64(srv.PresenceRate),
			PresenceBurst:       srv.PresenceBurst,
			ClientTimeout:       srv.ClientTimeout,
			HealthCheckInterval: srv.HealthCheckInterval,
		},
		Client: ClientConfig{
			BaseURL:           "http://" + srv.ListenAddr,
			MaxRetries:        3,
			RequestsPerSecond: 50,
			Timeout:           10 * time.Second,
		},
	}
}

// LoadYAML decodes r over Default, so omitted keys keep their defaults, and
// validates the result.
func LoadYAML(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadYAML(f)
}

func (c Config) Validate() error {
	for _, s := range []string{c.Strategy, c.OrderStrategy} {
		switch model.Strategy(s) {
		case model.StrategyLastWriteWins, model.StrategyFirstWriteWins, model.StrategyMerge, model.StrategyManual:
		default:
			return fmt.Errorf("strategy %q: %w", s, ErrInvalidConfig)
		}
	}
	if c.Presence.StaleAfter <= 0 || c.Presence.SweepInterval <= 0 || c.Presence.Throttle <= 0 {
		return fmt.Errorf("presence durations must be positive: %w", ErrInvalidConfig)
	}
	if c.Client.MaxRetries < 0 || c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("client retries and rate must not be negative: %w", ErrInvalidConfig)
	}
	if err := c.ServerConfig().Validate(); err != nil {
		return fmt.Errorf("server: %w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) Level() log.Level {
	return log.ParseLevel(c.LogLevel)
}

func (c Config) PresenceConfig() presence.Config {
	return presence.Config{
		StaleAfter:    c.Presence.StaleAfter,
		SweepInterval: c.Presence.SweepInterval,
		Throttle:      c.Presence.Throttle,
	}
}

func (c Config) ServerConfig() server.Config {
	cfg := server.DefaultServerConfig()
	cfg.ListenAddr = c.Server.ListenAddr
	cfg.MaxClients = c.Server.MaxClients
	cfg.PresenceRate = rate.Limit(c.Server.PresenceRate)
	cfg.PresenceBurst = c.Server.PresenceBurst
	cfg.ClientTimeout = c.Server.ClientTimeout
	cfg.HealthCheckInterval = c.Server.HealthCheckInterval
	return cfg
}

// ClientConfig returns the Mutation API client settings for actor.
func (c Config) ClientConfig(actor string) httpapi.Config {
	cfg := httpapi.DefaultConfig(c.Client.BaseURL)
	cfg.Actor = actor
	cfg.MaxRetries = c.Client.MaxRetries
	cfg.RequestsPerSecond = c.Client.RequestsPerSecond
	cfg.Timeout = c.Client.Timeout
	return cfg
}
