// Package app provides the application context and dependency wiring
// for the recon CLI: configuration, logging, and the pipeline
// instance shared by all commands.
package app

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/custodia/recon/pkg/pipeline"
	"github.com/custodia/recon/pkg/schema"
)

// App holds the recon CLI's dependencies.
type App struct {
	version string
	commit  string
	date    string

	config *Config
	logger *zerolog.Logger

	mu       sync.Mutex
	pipeline *pipeline.Pipeline
}

// New creates an App with configuration loaded from the environment,
// .env files, and any config file found in the standard locations.
func New(version, commit, date string) (*App, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := NewLogger(config)

	return &App{
		version: version,
		commit:  commit,
		date:    date,
		config:  config,
		logger:  &logger,
	}, nil
}

// Version returns the version string.
func (a *App) Version() string { return a.version }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// Pipeline returns the shared pipeline, building it lazily from the
// active profile.
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pipeline != nil {
		return a.pipeline, nil
	}

	profile, err := a.loadProfile()
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(
		pipeline.WithConfig(profile),
		pipeline.WithLogger(*a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return p, nil
}

// loadProfile reads the reconciliation profile named in config, or
// falls back to the built-in defaults.
func (a *App) loadProfile() (*schema.Config, error) {
	if a.config.Profile == "" {
		return schema.DefaultConfig(), nil
	}
	return schema.LoadConfigFile(a.config.Profile)
}
