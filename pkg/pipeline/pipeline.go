// Package pipeline orchestrates a reconciliation run through its five
// stages: schema alignment, event matching, break detection, triage,
// and correction, ending in a sealed audit report. Stage outputs are
// written once and never mutated; the human confirmation gate is the
// only point where a run waits.
package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
)

// Pipeline builds runs. It is safe for concurrent use; each Run is
// independent.
type Pipeline struct {
	cfg     *schema.Config
	logger  zerolog.Logger
	clock   func() time.Time
	timeout time.Duration
	runID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets the reconciliation profile. Defaults to
// schema.DefaultConfig.
func WithConfig(cfg *schema.Config) Option {
	return func(p *Pipeline) {
		if cfg != nil {
			p.cfg = cfg
		}
	}
}

// WithLogger sets the logger for all runs.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock overrides the time source. Tests use this to pin
// timestamps and the confirmation deadline.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithConfirmationTimeout bounds Await. Overrides the profile value.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithRunIDFunc overrides run ID generation.
func WithRunIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.runID = fn
		}
	}
}

// New returns a Pipeline with the given options applied.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    schema.DefaultConfig(),
		logger: *logging.Default(),
		clock:  time.Now,
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.timeout == 0 {
		p.timeout = p.cfg.ConfirmationTimeout.Duration
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewRun creates a pending run.
func (p *Pipeline) NewRun() *Run {
	id := p.runID()
	return &Run{
		p:       p,
		id:      id,
		status:  StatusPending,
		log:     p.logger.With().Str("run_id", id).Logger(),
		confirm: make(chan struct{}),
	}
}
