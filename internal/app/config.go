package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WorkloadPath string // .hcl file or directory
	ReportPath   string // msgpack report, empty to skip
	NotifyURL    string // socket.io server for live status, empty to skip

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	Workers         int
	Timeout         time.Duration
	Color           bool
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkloadPath == "" {
		return nil, errors.New("WorkloadPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("Workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("Timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("HealthcheckPort %d is out of range", cfg.HealthcheckPort)
	}
	if _, ok := ParseLogLevel(cfg.LogLevel); !ok {
		return nil, fmt.Errorf("unknown LogLevel %q", cfg.LogLevel)
	}
	return &cfg, nil
}
