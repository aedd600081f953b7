// Package corrections turns approved classifications into reversible
// correction instructions and everything else into non-destructive
// recommendations. No underlying data is ever mutated here; the output
// is a list of instructions for the booking system.
package corrections

import (
	"time"

	"github.com/google/uuid"
)

// CorrectionType names the corrective action.
type CorrectionType string

// Correction types.
const (
	TypeDateAlignment      CorrectionType = "date_alignment"
	TypeRoundingAdjustment CorrectionType = "rounding_adjustment"
	TypeFXRecalculation    CorrectionType = "fx_recalculation"
	TypeRecordInsertion    CorrectionType = "record_insertion"
	TypeManualInstruction  CorrectionType = "manual_instruction"
)

// Correction is one action, applied or recommended, addressing a
// classified break. Immutable once recorded.
type Correction struct {
	ID       string         `json:"correction_id"`
	BreakID  string         `json:"break_id"`
	EventKey string         `json:"event_key"`
	Type     CorrectionType `json:"correction_type"`

	OriginalValue  string `json:"original_value"`
	CorrectedValue string `json:"corrected_value"`

	AutoApplied         bool   `json:"auto_applied"`
	Reversible          bool   `json:"reversible"`
	RequiresHumanReview bool   `json:"requires_human_review"`
	Justification       string `json:"justification,omitempty"`

	// AuditRef is the external reference that makes FX recalculations
	// and record insertions reversible. Empty otherwise.
	AuditRef string `json:"audit_ref,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func newCorrection(breakID, eventKey string, t CorrectionType, now time.Time) Correction {
	return Correction{
		ID:        uuid.NewString(),
		BreakID:   breakID,
		EventKey:  eventKey,
		Type:      t,
		Timestamp: now,
	}
}
