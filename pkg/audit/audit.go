// Package audit assembles the immutable end-of-run report: one record
// per economic event, linked into a SHA-256 hash chain so any
// after-the-fact edit is detectable.
package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia/recon/pkg/breaks"
	"github.com/custodia/recon/pkg/corrections"
	"github.com/custodia/recon/pkg/events"
	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/triage"
)

// SchemaVersion identifies the report layout for downstream readers.
const SchemaVersion = "recon/v1"

// Record is the audit trail for a single economic event.
type Record struct {
	EventKey  string          `json:"event_key"`
	PresentIn events.Presence `json:"present_in"`

	// MappingRefs lists the mapping plan entries the event's
	// comparison ran through, as target field names.
	MappingRefs []string `json:"mapping_refs,omitempty"`

	BreakIDs []string `json:"break_ids,omitempty"`

	// ClassificationIDs reference triage decisions by their break
	// identifier; triage decides per break and has no ID of its own.
	ClassificationIDs []string `json:"classification_ids,omitempty"`
	CorrectionIDs     []string `json:"correction_ids,omitempty"`
	AutoCorrected     int      `json:"auto_corrected"`

	Narrative string `json:"narrative"`

	// PrevHash and Hash link the record into the report chain.
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Metrics summarizes the run for reviewers and dashboards.
type Metrics struct {
	EventsTotal  int `json:"events_total"`
	EventsClean  int `json:"events_clean"`
	EventsBroken int `json:"events_broken"`

	BreaksTotal      int            `json:"breaks_total"`
	BreaksBySeverity map[string]int `json:"breaks_by_severity"`
	BreaksByType     map[string]int `json:"breaks_by_type"`

	CorrectionsTotal int `json:"corrections_total"`
	AutoApplied      int `json:"auto_applied"`
	ManualReview     int `json:"manual_review"`

	// MeanConfidence averages the classifier confidence across all
	// classified breaks. Zero when nothing was classified.
	MeanConfidence float64 `json:"mean_confidence"`

	// AutoCorrectionRatio is auto-applied corrections over total
	// breaks. Zero when there were no breaks.
	AutoCorrectionRatio float64 `json:"auto_correction_ratio"`
}

// Report is the full output of a reconciliation run. Once built and
// sealed it must not be mutated; Verify detects tampering.
type Report struct {
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`

	Plan            *schema.MappingPlan      `json:"mapping_plan,omitempty"`
	Breaks          []breaks.Break           `json:"breaks"`
	Classifications []triage.Classification  `json:"classifications"`
	Corrections     []corrections.Correction `json:"corrections"`
	Records         []Record                 `json:"records"`

	Metrics Metrics `json:"metrics"`

	// CriticalIssues flags a report assembled from an incomplete run:
	// a critical mapping plan, or upstream stages that never produced
	// output. Notes explains which.
	CriticalIssues bool     `json:"critical_issues"`
	Notes          []string `json:"notes,omitempty"`

	// ChainHead is the hash of the last record in the chain.
	ChainHead string `json:"chain_head"`
}

// BuildInput carries whatever the run produced. Nil or empty sections
// are tolerated; the report records the gap instead of failing.
type BuildInput struct {
	RunID       string
	GeneratedAt time.Time

	Events      []events.EconomicEvent
	Plan        *schema.MappingPlan
	Breaks      []breaks.Break
	Triage      *triage.Result
	Corrections []corrections.Correction
}

// Build assembles and seals the report. It never fails on missing
// upstream sections: a partial run yields a partial report with
// CriticalIssues set.
func Build(ctx context.Context, in BuildInput) *Report {
	log := logging.Ctx(ctx)

	r := &Report{
		SchemaVersion: SchemaVersion,
		RunID:         in.RunID,
		GeneratedAt:   in.GeneratedAt,
		Plan:          in.Plan,
		Breaks:        in.Breaks,
		Corrections:   in.Corrections,
	}
	if r.Breaks == nil {
		r.Breaks = []breaks.Break{}
	}
	if r.Corrections == nil {
		r.Corrections = []corrections.Correction{}
	}
	if in.Triage != nil {
		r.Classifications = in.Triage.Classifications
	}
	if r.Classifications == nil {
		r.Classifications = []triage.Classification{}
	}

	noteGaps(r, in)
	r.Records = buildRecords(in)
	r.Metrics = buildMetrics(in, r)
	sealChain(r)

	log.Info().Str("run_id", r.RunID).Int("records", len(r.Records)).
		Bool("critical_issues", r.CriticalIssues).Str("chain_head", r.ChainHead).
		Msg("audit report sealed")
	return r
}

func noteGaps(r *Report, in BuildInput) {
	if in.Plan == nil {
		r.CriticalIssues = true
		r.Notes = append(r.Notes, "no mapping plan produced")
	} else if in.Plan.Critical {
		r.CriticalIssues = true
		r.Notes = append(r.Notes, "mapping plan flagged critical; downstream stages ran degraded")
	}
	if in.Events == nil {
		r.CriticalIssues = true
		r.Notes = append(r.Notes, "event matching did not run")
	}
	if in.Triage == nil && len(in.Breaks) > 0 {
		r.CriticalIssues = true
		r.Notes = append(r.Notes, "breaks detected but triage did not run")
	}
}

func buildRecords(in BuildInput) []Record {
	mappingRefs := planRefs(in.Plan)

	byEvent := make(map[string]*Record, len(in.Events))
	order := make([]string, 0, len(in.Events))
	for _, ev := range in.Events {
		if _, ok := byEvent[ev.Key]; ok {
			continue
		}
		byEvent[ev.Key] = &Record{EventKey: ev.Key, PresentIn: ev.PresentIn, MappingRefs: mappingRefs}
		order = append(order, ev.Key)
	}

	for _, b := range in.Breaks {
		rec, ok := byEvent[b.EventKey]
		if !ok {
			rec = &Record{EventKey: b.EventKey, MappingRefs: mappingRefs}
			byEvent[b.EventKey] = rec
			order = append(order, b.EventKey)
		}
		rec.BreakIDs = append(rec.BreakIDs, b.ID)
	}
	if in.Triage != nil {
		for _, cl := range in.Triage.Classifications {
			if rec, ok := byEvent[cl.EventKey]; ok {
				rec.ClassificationIDs = append(rec.ClassificationIDs, cl.BreakID)
			}
		}
	}
	for _, c := range in.Corrections {
		rec, ok := byEvent[c.EventKey]
		if !ok {
			continue
		}
		rec.CorrectionIDs = append(rec.CorrectionIDs, c.ID)
		if c.AutoApplied {
			rec.AutoCorrected++
		}
	}

	sort.Strings(order)
	out := make([]Record, 0, len(order))
	for _, key := range order {
		rec := byEvent[key]
		rec.Narrative = narrate(rec)
		out = append(out, *rec)
	}
	return out
}

// planRefs lists the mapping entries of the plan by target field.
func planRefs(plan *schema.MappingPlan) []string {
	if plan == nil {
		return nil
	}
	refs := make([]string, 0, len(plan.Mappings))
	for _, m := range plan.Mappings {
		refs = append(refs, m.TargetField)
	}
	return refs
}

// narrate writes the one-line human summary for a record. Kept
// deterministic so the hash chain stays stable across runs on the
// same input.
func narrate(rec *Record) string {
	switch {
	case len(rec.BreakIDs) == 0:
		return fmt.Sprintf("event %s reconciled clean", rec.EventKey)
	case rec.AutoCorrected == len(rec.BreakIDs):
		return fmt.Sprintf("event %s: %d break(s), all auto-corrected", rec.EventKey, len(rec.BreakIDs))
	case rec.AutoCorrected > 0:
		return fmt.Sprintf("event %s: %d break(s), %d auto-corrected, remainder pending review",
			rec.EventKey, len(rec.BreakIDs), rec.AutoCorrected)
	default:
		return fmt.Sprintf("event %s: %d break(s) pending review", rec.EventKey, len(rec.BreakIDs))
	}
}

func buildMetrics(in BuildInput, r *Report) Metrics {
	m := Metrics{
		BreaksBySeverity: map[string]int{},
		BreaksByType:     map[string]int{},
	}

	m.EventsTotal = len(r.Records)
	for _, rec := range r.Records {
		if len(rec.BreakIDs) == 0 {
			m.EventsClean++
		} else {
			m.EventsBroken++
		}
	}

	m.BreaksTotal = len(r.Breaks)
	for _, b := range r.Breaks {
		m.BreaksBySeverity[string(b.Severity)]++
		m.BreaksByType[string(b.Type)]++
	}

	m.CorrectionsTotal = len(r.Corrections)
	for _, c := range r.Corrections {
		if c.AutoApplied {
			m.AutoApplied++
		}
		if c.RequiresHumanReview {
			m.ManualReview++
		}
	}

	if n := len(r.Classifications); n > 0 {
		sum := 0
		for _, cl := range r.Classifications {
			sum += cl.Confidence
		}
		m.MeanConfidence = float64(sum) / float64(n)
	}
	if m.BreaksTotal > 0 {
		m.AutoCorrectionRatio = float64(m.AutoApplied) / float64(m.BreaksTotal)
	}
	return m
}
