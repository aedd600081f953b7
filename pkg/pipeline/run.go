package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/custodia/recon/pkg/audit"
	"github.com/custodia/recon/pkg/breaks"
	"github.com/custodia/recon/pkg/corrections"
	"github.com/custodia/recon/pkg/errors"
	"github.com/custodia/recon/pkg/events"
	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/tabular"
	"github.com/custodia/recon/pkg/triage"
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses. Incomplete runs remain resumable through Confirm;
// failed runs do not.
const (
	StatusPending              Status = "pending"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusComplete             Status = "complete"
	StatusIncomplete           Status = "incomplete"
	StatusFailed               Status = "failed"
)

// Run is a single reconciliation pass over one target/source pair.
// Stage outputs are set once by Execute and the confirmation path and
// never overwritten.
type Run struct {
	p   *Pipeline
	id  string
	log zerolog.Logger

	mu     sync.Mutex
	status Status

	plan    *schema.MappingPlan
	events  []events.EconomicEvent
	breaks  []breaks.Break
	triage  *triage.Result
	fixes   []corrections.Correction
	report  *audit.Report
	started time.Time

	// confirm closes when the human gate has been answered.
	confirm     chan struct{}
	confirmOnce sync.Once
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Report returns the sealed audit report, or nil while the run is
// still in flight.
func (r *Run) Report() *audit.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// Triage returns the classification result, or nil before detection
// has run. Callers get the live pointer; triage results are replaced,
// not mutated, on confirmation.
func (r *Run) Triage() *triage.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triage
}

// Execute runs alignment, matching, detection, and triage. When triage
// nominates auto-fix candidates the run parks at
// StatusAwaitingConfirmation and the caller drives it forward with
// Confirm or Await. Otherwise the run finishes immediately.
func (r *Run) Execute(ctx context.Context, target, source *tabular.Dataset) error {
	r.mu.Lock()
	if r.status != StatusPending {
		r.mu.Unlock()
		return errors.NewValidationError("run", string(r.status), "already executed")
	}
	r.started = r.p.clock()
	r.mu.Unlock()

	ctx = logging.WithRunID(ctx, r.id)

	plan, err := schema.Align(logging.WithStage(ctx, "align"), target, source, r.p.cfg)
	if err != nil {
		r.fail(err)
		return err
	}
	evs := events.Match(logging.WithStage(ctx, "match"), target, source, plan, r.p.cfg)
	if err := ctx.Err(); err != nil {
		r.fail(errors.ErrCanceled)
		return errors.ErrCanceled
	}
	brs := breaks.Detect(logging.WithStage(ctx, "detect"), evs, plan, r.p.cfg)
	tr := triage.Classify(logging.WithStage(ctx, "classify"), brs, plan, r.p.cfg)

	r.mu.Lock()
	r.plan = plan
	r.events = evs
	r.breaks = brs
	r.triage = tr

	if tr.AwaitingUserConfirmation {
		r.status = StatusAwaitingConfirmation
		r.mu.Unlock()
		r.log.Info().Int("auto_candidates", len(tr.AutoCandidates)).
			Msg("run parked at confirmation gate")
		return nil
	}
	r.mu.Unlock()

	r.finish(ctx, tr)
	return nil
}

// Confirm applies the reviewer's decisions. A batch that rules on
// every pending auto candidate finishes the run; a partial batch
// keeps it parked at the gate. Confirm is valid while the run is
// awaiting confirmation, and also on an incomplete run: a timeout
// parks the run, it does not void the gate.
func (r *Run) Confirm(ctx context.Context, approvals triage.Approvals) error {
	r.mu.Lock()
	if r.status != StatusAwaitingConfirmation && r.status != StatusIncomplete {
		r.mu.Unlock()
		return errors.ErrRunNotResumable
	}
	decided := triage.ApplyConfirmations(r.triage, approvals, r.p.clock())
	r.triage = decided
	if decided.AwaitingUserConfirmation {
		r.status = StatusAwaitingConfirmation
		r.mu.Unlock()
		r.log.Info().Str("accepted_by", approvals.By).
			Msg("partial confirmation recorded; run still parked")
		return nil
	}
	r.mu.Unlock()

	r.confirmOnce.Do(func() { close(r.confirm) })

	ctx = logging.WithRunID(ctx, r.id)
	r.finish(ctx, decided)
	return nil
}

// Await blocks until Confirm is called, the context is canceled, or
// the confirmation timeout elapses. On timeout the run is marked
// incomplete and a ConfirmationTimeoutError is returned; the run can
// still be resumed with Confirm.
func (r *Run) Await(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusAwaitingConfirmation {
		st := r.status
		r.mu.Unlock()
		if st == StatusComplete {
			return nil
		}
		return errors.ErrRunNotResumable
	}
	pending := len(r.triage.AutoCandidates)
	r.mu.Unlock()

	timer := time.NewTimer(r.p.timeout)
	defer timer.Stop()

	select {
	case <-r.confirm:
		return nil
	case <-ctx.Done():
		r.park()
		return errors.ErrCanceled
	case <-timer.C:
		r.park()
		return &errors.ConfirmationTimeoutError{
			RunID:   r.id,
			Waited:  r.p.timeout,
			Pending: pending,
		}
	}
}

// park moves an awaiting run to incomplete. Confirm remains valid.
func (r *Run) park() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusAwaitingConfirmation {
		r.status = StatusIncomplete
		r.log.Warn().Msg("confirmation gate expired; run parked incomplete")
	}
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusFailed
	r.log.Error().Err(err).Msg("run failed")
}

// finish runs corrections and seals the audit report.
func (r *Run) finish(ctx context.Context, tr *triage.Result) {
	r.mu.Lock()
	plan, evs, brs, started := r.plan, r.events, r.breaks, r.started
	r.mu.Unlock()

	now := r.p.clock()
	fixes := corrections.Process(logging.WithStage(ctx, "correct"), tr, brs, plan, r.p.cfg, now)
	report := audit.Build(logging.WithStage(ctx, "audit"), audit.BuildInput{
		RunID:       r.id,
		GeneratedAt: now,
		Events:      evs,
		Plan:        plan,
		Breaks:      brs,
		Triage:      tr,
		Corrections: fixes,
	})

	r.mu.Lock()
	r.fixes = fixes
	r.report = report
	r.status = StatusComplete
	r.mu.Unlock()

	r.log.Info().Str("chain_head", report.ChainHead).
		Dur("elapsed", now.Sub(started)).Msg("run complete")
}
