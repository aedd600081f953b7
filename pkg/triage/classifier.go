package triage

import (
	"context"

	"github.com/custodia/recon/pkg/breaks"
	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/tabular"
)

// Rule-match confidence bands: deterministic date and rounding rules
// score 90-100, inferred categorizations 70-90, uncertain ones below 70.
const (
	confidenceTimingMinor   = 95
	confidenceRounding      = 92
	confidenceTimingLate    = 78
	confidenceCurrencyOnly  = 75
	confidenceAmountAmbig   = 65
	confidenceMissingRecord = 60
)

// Classify runs the decision table over the break list. Order of the
// input is preserved in the output; the partition lists carry break IDs.
func Classify(ctx context.Context, breakList []breaks.Break, plan *schema.MappingPlan, cfg *schema.Config) *Result {
	if cfg == nil {
		cfg = schema.DefaultConfig()
	}
	log := logging.Ctx(ctx)
	critical := plan != nil && plan.Critical

	// Events that also carry a currency break: amount mismatches there
	// classify as FX variance rather than data entry.
	currencyEvents := make(map[string]bool)
	for _, b := range breakList {
		if b.Type == breaks.TypeCurrencyMismatch {
			currencyEvents[b.EventKey] = true
		}
	}

	result := &Result{
		Classifications:  make([]Classification, 0, len(breakList)),
		AutoCandidates:   []string{},
		ManualCandidates: []string{},
	}

	for _, b := range breakList {
		c := classifyOne(b, currencyEvents[b.EventKey], cfg)
		c.Priority = priorityFor(b.Severity)

		if c.Confidence < cfg.ConfidenceCutoff {
			c.RecommendedAction = ActionManualReview
		}
		if critical {
			c.RecommendedAction = ActionManualReview
			c.Rationale += "; upstream mapping critical, automation disabled"
		}

		if c.RecommendedAction == ActionAutoFix && c.Confidence >= cfg.ConfidenceCutoff && !critical {
			result.AutoCandidates = append(result.AutoCandidates, c.BreakID)
		} else {
			result.ManualCandidates = append(result.ManualCandidates, c.BreakID)
		}
		result.Classifications = append(result.Classifications, c)
	}

	result.AwaitingUserConfirmation = len(result.AutoCandidates) > 0

	log.Info().Int("breaks", len(breakList)).
		Int("auto_candidates", len(result.AutoCandidates)).
		Int("manual_candidates", len(result.ManualCandidates)).
		Bool("awaiting_confirmation", result.AwaitingUserConfirmation).
		Msg("breaks classified")
	return result
}

// classifyOne applies the decision table to a single break.
func classifyOne(b breaks.Break, eventHasCurrencyBreak bool, cfg *schema.Config) Classification {
	c := Classification{
		BreakID:   b.ID,
		EventKey:  b.EventKey,
		BreakType: b.Type,
	}

	switch b.Type {
	case breaks.TypeMissingRecord:
		c.Category = CategoryMissingRecord
		c.Confidence = confidenceMissingRecord
		c.RecommendedAction = ActionManualReview
		c.Rationale = "record absent on one side; origin cannot be inferred from the data"

	case breaks.TypeDateMismatch:
		c.Category = CategoryTimingDifference
		if b.Severity == breaks.SeverityMinor {
			c.Confidence = confidenceTimingMinor
			c.RecommendedAction = ActionAutoFix
			c.Rationale = "date shifted within one business day; settlement timing"
		} else {
			c.Confidence = confidenceTimingLate
			c.RecommendedAction = ActionManualReview
			c.Rationale = "date shifted beyond the business-day bucket"
		}

	case breaks.TypeCurrencyMismatch:
		c.Category = CategoryFXVariance
		c.Confidence = confidenceCurrencyOnly
		c.RecommendedAction = ActionManualReview
		c.Rationale = "settlement currency differs between ledgers"

	case breaks.TypeAmountMismatch:
		switch {
		case eventHasCurrencyBreak:
			c.Category = CategoryFXVariance
			c.Confidence = confidenceAmountAmbig
			c.RecommendedAction = ActionManualReview
			c.Rationale = "amount differs on an event whose currency also differs"
		case withinRoundingBound(b, cfg):
			c.Category = CategoryRoundingError
			c.Confidence = confidenceRounding
			c.RecommendedAction = ActionAutoFix
			c.Rationale = "difference within rounding bound"
		default:
			c.Category = CategoryDataEntryError
			c.Confidence = confidenceAmountAmbig
			c.RecommendedAction = ActionManualReview
			c.Rationale = "amount difference exceeds rounding bound"
		}
	}

	return c
}

func withinRoundingBound(b breaks.Break, cfg *schema.Config) bool {
	tv, okT := tabular.CoerceDecimal(b.TargetValue)
	sv, okS := tabular.CoerceDecimal(b.SourceValue)
	if !okT || !okS {
		return false
	}
	return tv.Sub(sv).Abs().LessThanOrEqual(cfg.RoundingBound.Decimal)
}
