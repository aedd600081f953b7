// Package triage assigns root-cause category, priority, and confidence
// to each break through a deterministic decision table, and gates
// automatic correction behind explicit human approval.
package triage

import (
	"time"

	"github.com/custodia/recon/pkg/breaks"
)

// Category is the root-cause bucket of a classified break.
type Category string

// Root-cause categories.
const (
	CategoryTimingDifference Category = "timing_difference"
	CategoryRoundingError    Category = "rounding_error"
	CategoryDataEntryError   Category = "data_entry_error"
	CategoryFXVariance       Category = "fx_variance"
	CategoryMissingRecord    Category = "missing_record"
)

// Priority derives directly from break severity.
type Priority string

// Priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Action is the triage recommendation for a break.
type Action string

// Recommended actions.
const (
	ActionAutoFix      Action = "auto_fix"
	ActionManualReview Action = "manual_review"
)

// Classification is the triage decision for one break. The approval
// fields are the only mutable state in the pipeline and change solely
// through ApplyConfirmations.
type Classification struct {
	BreakID   string      `json:"break_id"`
	EventKey  string      `json:"event_key"`
	BreakType breaks.Type `json:"break_type"`

	Category          Category `json:"category"`
	Priority          Priority `json:"priority"`
	Confidence        int      `json:"confidence"`
	RecommendedAction Action   `json:"recommended_action"`
	Rationale         string   `json:"rationale"`

	ApprovedForAutoCorrection bool       `json:"approved_for_auto_correction"`
	AcceptedBy                string     `json:"accepted_by,omitempty"`
	AcceptedAt                *time.Time `json:"accepted_at,omitempty"`
}

// Decided reports whether the human gate has ruled on this break.
func (c *Classification) Decided() bool {
	return c.AcceptedAt != nil
}

// Result partitions the classified breaks into automation candidates
// and everything else.
type Result struct {
	Classifications []Classification `json:"classifications"`

	// AutoCandidates holds break IDs recommended for auto-fix with
	// sufficient confidence and no critical upstream flag.
	AutoCandidates []string `json:"auto_candidates"`

	// ManualCandidates holds every other break ID.
	ManualCandidates []string `json:"manual_candidates"`

	// AwaitingUserConfirmation is true while any auto candidate lacks
	// an explicit human decision.
	AwaitingUserConfirmation bool `json:"awaiting_user_confirmation"`
}

// ClassificationFor returns the classification of one break.
func (r *Result) ClassificationFor(breakID string) (Classification, bool) {
	for _, c := range r.Classifications {
		if c.BreakID == breakID {
			return c, true
		}
	}
	return Classification{}, false
}

// Approved returns the break IDs cleared for automatic correction.
func (r *Result) Approved() []string {
	ids := []string{}
	for _, c := range r.Classifications {
		if c.ApprovedForAutoCorrection {
			ids = append(ids, c.BreakID)
		}
	}
	return ids
}

func priorityFor(sev breaks.Severity) Priority {
	switch sev {
	case breaks.SeverityMajor:
		return PriorityHigh
	case breaks.SeverityModerate:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
