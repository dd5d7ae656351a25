// Package config loads client and server settings from ARENA_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Transport names.
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Client configures one client session.
type Client struct {
	Address   string `env:"ARENA_SERVER_ADDR" envDefault:"127.0.0.1:8080"`
	Transport string `env:"ARENA_TRANSPORT"   envDefault:"tcp"`
	PlayerID  string `env:"ARENA_PLAYER_ID"`

	StartX   float64 `env:"ARENA_START_X"   envDefault:"10"`
	StartY   float64 `env:"ARENA_START_Y"   envDefault:"20"`
	StartZ   float64 `env:"ARENA_START_Z"   envDefault:"30"`
	StepSize float64 `env:"ARENA_STEP_SIZE" envDefault:"1.0"`

	InputInterval   time.Duration `env:"ARENA_INPUT_INTERVAL"    envDefault:"50ms"`
	SendInterval    time.Duration `env:"ARENA_SEND_INTERVAL"     envDefault:"100ms"`
	SessionDuration time.Duration `env:"ARENA_SESSION_DURATION"  envDefault:"120s"`
	DialTimeout     time.Duration `env:"ARENA_DIAL_TIMEOUT"      envDefault:"5s"`
	WriteTimeout    time.Duration `env:"ARENA_WRITE_TIMEOUT"     envDefault:"2s"`
	ExitTimeout     time.Duration `env:"ARENA_EXIT_TIMEOUT"      envDefault:"2s"`

	Headless    bool   `env:"ARENA_HEADLESS"`
	LogFile     string `env:"ARENA_LOG_FILE"     envDefault:"client.log"`
	Debug       bool   `env:"ARENA_DEBUG"`
	MetricsAddr string `env:"ARENA_METRICS_ADDR"`
}

// Server configures the sandbox server.
type Server struct {
	Address      string        `env:"ARENA_LISTEN_ADDR"   envDefault:":8080"`
	TickInterval time.Duration `env:"ARENA_TICK_INTERVAL" envDefault:"100ms"`
	Weather      string        `env:"ARENA_WEATHER"       envDefault:"clear"`
	Temperature  float64       `env:"ARENA_TEMPERATURE"   envDefault:"21.5"`
	LogFile      string        `env:"ARENA_LOG_FILE"`
	Debug        bool          `env:"ARENA_DEBUG"`
}

// LoadClient parses client settings from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadServer parses server settings from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid client setting.
func (c Client) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	switch c.Transport {
	case TransportTCP:
	case TransportWS:
		if !strings.HasPrefix(c.Address, "ws://") && !strings.HasPrefix(c.Address, "wss://") {
			errs = append(errs, fmt.Errorf("ws transport needs a ws:// address, got %q", c.Address))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.InputInterval <= 0 || c.SendInterval <= 0 || c.SessionDuration <= 0 {
		errs = append(errs, errors.New("intervals and session duration must be positive"))
	}
	if c.DialTimeout <= 0 || c.WriteTimeout <= 0 || c.ExitTimeout <= 0 {
		errs = append(errs, errors.New("dial, write and exit timeouts must be positive"))
	}
	return errors.Join(errs...)
}
