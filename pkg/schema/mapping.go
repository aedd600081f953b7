package schema

// MappingKind identifies which strategy resolved a target field.
type MappingKind string

// Mapping strategies in ladder order.
const (
	KindDirect     MappingKind = "direct"
	KindDerived    MappingKind = "derived"
	KindAggregated MappingKind = "aggregated"
	KindContextual MappingKind = "contextual"
)

// Per-kind mapping confidence. Direct synonym matches sit slightly
// below exact name matches; contextual equivalence is the weakest
// admissible strategy.
const (
	confidenceDirectExact   = 100
	confidenceDirectSynonym = 95
	confidenceDerived       = 90
	confidenceAggregated    = 85
	confidenceContextual    = 75
)

// ColumnMapping links one target field to the source fields that
// produce its value. Immutable once the plan is built.
type ColumnMapping struct {
	TargetField  string      `json:"target_field" yaml:"target_field"`
	SourceFields []string    `json:"source_fields" yaml:"source_fields"`
	Kind         MappingKind `json:"kind" yaml:"kind"`
	// Formula describes derived and aggregated mappings; empty otherwise.
	Formula string `json:"formula,omitempty" yaml:"formula,omitempty"`
	// GroupBy carries the grouping keys of aggregated mappings.
	GroupBy    []string `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Op         string   `json:"op,omitempty" yaml:"op,omitempty"`
	Confidence int      `json:"confidence" yaml:"confidence"`
}

// DatatypeMismatch records a value that could not be coerced to the
// field's declared type.
type DatatypeMismatch struct {
	Dataset string    `json:"dataset"`
	Field   string    `json:"field"`
	Type    FieldType `json:"declared_type"`
	Sample  string    `json:"sample"`
	Rows    int       `json:"rows_affected"`
}

// ManualReviewEntry flags a business-level gap for a human to resolve.
type ManualReviewEntry struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// MappingPlan is the full alignment outcome for one run. Every target
// field appears in exactly one of Mappings or UnmappedTarget.
type MappingPlan struct {
	Mappings           []ColumnMapping     `json:"mappings"`
	UnmappedTarget     []string            `json:"unmapped_target"`
	UnmappedSource     []string            `json:"unmapped_source"`
	DatatypeMismatches []DatatypeMismatch  `json:"datatype_mismatches"`
	ManualReview       []ManualReviewEntry `json:"manual_review"`

	// Critical gates all downstream automation when true.
	Critical        bool     `json:"critical"`
	CriticalReasons []string `json:"critical_reasons,omitempty"`
}

// MappingFor returns the mapping that resolves a target field.
func (p *MappingPlan) MappingFor(target string) (ColumnMapping, bool) {
	for _, m := range p.Mappings {
		if m.TargetField == target {
			return m, true
		}
	}
	return ColumnMapping{}, false
}

// IsMapped reports whether a target field was resolved by any strategy.
func (p *MappingPlan) IsMapped(target string) bool {
	_, ok := p.MappingFor(target)
	return ok
}

// markCritical raises the critical flag, keeping every distinct reason.
func (p *MappingPlan) markCritical(reason string) {
	p.Critical = true
	for _, r := range p.CriticalReasons {
		if r == reason {
			return
		}
	}
	p.CriticalReasons = append(p.CriticalReasons, reason)
}
