package corrections

import (
	"context"
	"time"

	"github.com/custodia/recon/pkg/breaks"
	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/triage"
)

// Process produces one correction per classified break: auto-applied
// instructions for approved low-risk classifications, recommendations
// for everything else. Duplicate corrections for the same
// (event, correction type) collapse to the first.
//
// A critical mapping plan disables auto-application globally, whatever
// the individual approvals say.
func Process(ctx context.Context, tr *triage.Result, breakList []breaks.Break, plan *schema.MappingPlan, cfg *schema.Config, now time.Time) []Correction {
	if cfg == nil {
		cfg = schema.DefaultConfig()
	}
	log := logging.Ctx(ctx)
	critical := plan != nil && plan.Critical

	byID := make(map[string]breaks.Break, len(breakList))
	for _, b := range breakList {
		byID[b.ID] = b
	}

	type dedupeKey struct {
		eventKey string
		ctype    CorrectionType
	}
	seen := make(map[dedupeKey]bool)

	out := []Correction{}
	applied := 0

	for _, cl := range tr.Classifications {
		b, ok := byID[cl.BreakID]
		if !ok {
			continue
		}

		ctype := correctionTypeFor(b.Type, cl.Category)
		k := dedupeKey{eventKey: cl.EventKey, ctype: ctype}
		if seen[k] {
			continue
		}
		seen[k] = true

		c := newCorrection(cl.BreakID, cl.EventKey, ctype, now)
		fillValues(&c, b)

		canAuto := cl.ApprovedForAutoCorrection &&
			cl.Confidence >= cfg.ConfidenceCutoff &&
			cl.RecommendedAction == triage.ActionAutoFix &&
			!critical

		if canAuto {
			c.AutoApplied = true
			c.Justification = cl.Rationale
			applied++
		} else {
			c.RequiresHumanReview = true
			c.Justification = justifyManual(cl, critical)
		}
		c.Reversible = reversible(ctype, c.AuditRef)

		out = append(out, c)
	}

	log.Info().Int("corrections", len(out)).Int("auto_applied", applied).
		Bool("critical_plan", critical).Msg("correction pass complete")
	return out
}

// correctionTypeFor maps a break and its root cause onto the action
// that would resolve it.
func correctionTypeFor(bt breaks.Type, cat triage.Category) CorrectionType {
	switch bt {
	case breaks.TypeDateMismatch:
		return TypeDateAlignment
	case breaks.TypeMissingRecord:
		return TypeRecordInsertion
	case breaks.TypeCurrencyMismatch:
		return TypeFXRecalculation
	case breaks.TypeAmountMismatch:
		switch cat {
		case triage.CategoryRoundingError:
			return TypeRoundingAdjustment
		case triage.CategoryFXVariance:
			return TypeFXRecalculation
		}
	}
	return TypeManualInstruction
}

// fillValues aligns the source side onto the target value: the target
// ledger is the book of record in this pipeline.
func fillValues(c *Correction, b breaks.Break) {
	switch b.Type {
	case breaks.TypeMissingRecord:
		c.OriginalValue = b.SourceValue
		c.CorrectedValue = "insert event " + b.EventKey
	default:
		c.OriginalValue = b.SourceValue
		c.CorrectedValue = b.TargetValue
	}
}

// reversible encodes the risk model: rounding and date alignment can
// always be undone, FX recalculation and record insertion only with an
// explicit audit reference, and manual instructions never mutate data.
func reversible(t CorrectionType, auditRef string) bool {
	switch t {
	case TypeDateAlignment, TypeRoundingAdjustment:
		return true
	case TypeFXRecalculation, TypeRecordInsertion:
		return auditRef != ""
	default:
		return false
	}
}

func justifyManual(cl triage.Classification, critical bool) string {
	j := cl.Rationale
	if j == "" {
		j = "classified " + string(cl.Category)
	}
	if critical {
		return j + "; auto-application disabled by critical mapping plan"
	}
	if !cl.ApprovedForAutoCorrection {
		return j + "; not approved for auto-correction"
	}
	return j
}
