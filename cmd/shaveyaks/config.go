package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/zoobzio/spanmetricz"
)

// envPrefix namespaces every setting, e.g. SHAVEYAKS_YAKS.
const envPrefix = "SHAVEYAKS"

// Config holds the demo's settings.
type Config struct {
	Yaks       int    `envconfig:"YAKS" default:"3"`
	FailYak    int    `envconfig:"FAIL_YAK" default:"3"`
	Workers    int    `envconfig:"WORKERS" default:"1"`
	TimingMode string `envconfig:"TIMING_MODE" default:"per-exit"`
	ReportIdle bool   `envconfig:"REPORT_IDLE" default:"false"`
	AsyncQueue int    `envconfig:"ASYNC_QUEUE" default:"0"`
	Prometheus bool   `envconfig:"PROMETHEUS" default:"false"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"debug"`
	LogDev     bool   `envconfig:"LOG_DEV" default:"true"`
}

// LoadConfig reads settings from the environment, after loading envFile
// when it exists.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that envconfig cannot.
func (c *Config) Validate() error {
	if c.Yaks < 0 {
		return fmt.Errorf("yaks must be >= 0, got %d", c.Yaks)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.AsyncQueue < 0 {
		return fmt.Errorf("async queue must be >= 0, got %d", c.AsyncQueue)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	return nil
}

// Mode parses TimingMode.
func (c *Config) Mode() (spanmetricz.TimingMode, error) {
	switch c.TimingMode {
	case spanmetricz.TimingPerExit.String():
		return spanmetricz.TimingPerExit, nil
	case spanmetricz.TimingSpanWindow.String():
		return spanmetricz.TimingSpanWindow, nil
	default:
		return 0, fmt.Errorf("unknown timing mode %q", c.TimingMode)
	}
}
