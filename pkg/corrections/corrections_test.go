package corrections

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/recon/pkg/breaks"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/triage"
)

var testNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func fixture(bt breaks.Type, cat triage.Category, conf int, approved bool) (triage.Classification, breaks.Break) {
	b := breaks.Break{
		ID:          uuid.NewString(),
		EventKey:    "DIV2025XY|US0378331005|2025-03-10|ACC-1",
		Type:        bt,
		Field:       "payment_date",
		TargetValue: "2025-03-12",
		SourceValue: "2025-03-13",
		Severity:    breaks.SeverityMinor,
	}
	cl := triage.Classification{
		BreakID:                   b.ID,
		EventKey:                  b.EventKey,
		BreakType:                 bt,
		Category:                  cat,
		Confidence:                conf,
		RecommendedAction:         triage.ActionAutoFix,
		Rationale:                 "one business day apart",
		ApprovedForAutoCorrection: approved,
	}
	if !approved {
		cl.RecommendedAction = triage.ActionManualReview
	}
	return cl, b
}

func TestProcessAutoAppliesApprovedDateAlignment(t *testing.T) {
	cl, b := fixture(breaks.TypeDateMismatch, triage.CategoryTimingDifference, 95, true)
	tr := &triage.Result{Classifications: []triage.Classification{cl}}

	out := Process(context.Background(), tr, []breaks.Break{b}, &schema.MappingPlan{}, nil, testNow)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, TypeDateAlignment, c.Type)
	assert.True(t, c.AutoApplied)
	assert.True(t, c.Reversible)
	assert.False(t, c.RequiresHumanReview)
	assert.Equal(t, "2025-03-13", c.OriginalValue)
	assert.Equal(t, "2025-03-12", c.CorrectedValue)
	assert.Equal(t, b.ID, c.BreakID)
	assert.Equal(t, testNow, c.Timestamp)
	assert.NotEmpty(t, c.ID)
}

func TestProcessUnapprovedBecomesRecommendation(t *testing.T) {
	cl, b := fixture(breaks.TypeDateMismatch, triage.CategoryTimingDifference, 95, false)
	tr := &triage.Result{Classifications: []triage.Classification{cl}}

	out := Process(context.Background(), tr, []breaks.Break{b}, &schema.MappingPlan{}, nil, testNow)
	require.Len(t, out, 1)

	c := out[0]
	assert.False(t, c.AutoApplied)
	assert.True(t, c.RequiresHumanReview)
	assert.Contains(t, c.Justification, "not approved")
}

func TestProcessCriticalPlanDisablesAuto(t *testing.T) {
	cl, b := fixture(breaks.TypeDateMismatch, triage.CategoryTimingDifference, 95, true)
	tr := &triage.Result{Classifications: []triage.Classification{cl}}
	plan := &schema.MappingPlan{Critical: true}

	out := Process(context.Background(), tr, []breaks.Break{b}, plan, nil, testNow)
	require.Len(t, out, 1)

	c := out[0]
	assert.False(t, c.AutoApplied)
	assert.True(t, c.RequiresHumanReview)
	assert.Contains(t, c.Justification, "critical mapping plan")
}

func TestProcessLowConfidenceNeverAutoApplies(t *testing.T) {
	cl, b := fixture(breaks.TypeAmountMismatch, triage.CategoryDataEntryError, 65, true)
	tr := &triage.Result{Classifications: []triage.Classification{cl}}

	out := Process(context.Background(), tr, []breaks.Break{b}, &schema.MappingPlan{}, nil, testNow)
	require.Len(t, out, 1)
	assert.False(t, out[0].AutoApplied)
	assert.True(t, out[0].RequiresHumanReview)
}

func TestCorrectionTypeMapping(t *testing.T) {
	tests := []struct {
		name string
		bt   breaks.Type
		cat  triage.Category
		want CorrectionType
	}{
		{"date mismatch", breaks.TypeDateMismatch, triage.CategoryTimingDifference, TypeDateAlignment},
		{"rounding amount", breaks.TypeAmountMismatch, triage.CategoryRoundingError, TypeRoundingAdjustment},
		{"fx amount", breaks.TypeAmountMismatch, triage.CategoryFXVariance, TypeFXRecalculation},
		{"currency", breaks.TypeCurrencyMismatch, triage.CategoryFXVariance, TypeFXRecalculation},
		{"missing record", breaks.TypeMissingRecord, triage.CategoryMissingRecord, TypeRecordInsertion},
		{"ambiguous amount", breaks.TypeAmountMismatch, triage.CategoryDataEntryError, TypeManualInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, correctionTypeFor(tt.bt, tt.cat))
		})
	}
}

func TestReversibilityRules(t *testing.T) {
	assert.True(t, reversible(TypeDateAlignment, ""))
	assert.True(t, reversible(TypeRoundingAdjustment, ""))
	assert.False(t, reversible(TypeFXRecalculation, ""))
	assert.True(t, reversible(TypeFXRecalculation, "AUD-REF-1"))
	assert.False(t, reversible(TypeRecordInsertion, ""))
	assert.True(t, reversible(TypeRecordInsertion, "AUD-REF-2"))
	assert.False(t, reversible(TypeManualInstruction, "AUD-REF-3"))
}

func TestProcessDeduplicatesOnEventAndType(t *testing.T) {
	cl1, b1 := fixture(breaks.TypeDateMismatch, triage.CategoryTimingDifference, 95, true)
	cl2, b2 := fixture(breaks.TypeDateMismatch, triage.CategoryTimingDifference, 95, true)
	b2.Field = "record_date"
	tr := &triage.Result{Classifications: []triage.Classification{cl1, cl2}}

	out := Process(context.Background(), tr, []breaks.Break{b1, b2}, &schema.MappingPlan{}, nil, testNow)
	require.Len(t, out, 1)
	assert.Equal(t, cl1.BreakID, out[0].BreakID)
}

func TestProcessMissingRecordInsertion(t *testing.T) {
	cl, b := fixture(breaks.TypeMissingRecord, triage.CategoryMissingRecord, 60, false)
	b.Field = ""
	b.TargetValue = ""
	b.SourceValue = "present"
	cl.Rationale = "event absent from internal ledger"
	tr := &triage.Result{Classifications: []triage.Classification{cl}}

	out := Process(context.Background(), tr, []breaks.Break{b}, &schema.MappingPlan{}, nil, testNow)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, TypeRecordInsertion, c.Type)
	assert.False(t, c.AutoApplied)
	assert.False(t, c.Reversible)
	assert.Contains(t, c.CorrectedValue, "insert event")
}

func TestProcessSkipsUnknownBreakIDs(t *testing.T) {
	cl, _ := fixture(breaks.TypeDateMismatch, triage.CategoryTimingDifference, 95, true)
	tr := &triage.Result{Classifications: []triage.Classification{cl}}

	out := Process(context.Background(), tr, nil, &schema.MappingPlan{}, nil, testNow)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}
