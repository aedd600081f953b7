// Package breaks compares matched economic events field by field under
// the profile's tolerance rules and emits typed, severity-ranked break
// records.
package breaks

import (
	"github.com/google/uuid"
)

// Type classifies a detected discrepancy.
type Type string

// Break types.
const (
	TypeMissingRecord    Type = "missing_record"
	TypeAmountMismatch   Type = "amount_mismatch"
	TypeCurrencyMismatch Type = "currency_mismatch"
	TypeDateMismatch     Type = "date_mismatch"
)

// Severity is the ordinal risk rank of a break.
type Severity string

// Severities, minor < moderate < major.
const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
)

// Rank returns the ordinal position for severity comparison.
func (s Severity) Rank() int {
	switch s {
	case SeverityMajor:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// Max returns the higher of two severities.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// Break is one detected discrepancy tied to exactly one event and one
// field. Immutable once emitted.
type Break struct {
	ID          string   `json:"break_id"`
	EventKey    string   `json:"event_key"`
	Type        Type     `json:"break_type"`
	Field       string   `json:"field,omitempty"`
	TargetValue string   `json:"target_value"`
	SourceValue string   `json:"source_value"`
	Severity    Severity `json:"severity"`
	Comment     string   `json:"comment,omitempty"`
}

// newBreak assigns a fresh identifier; everything else is caller data.
func newBreak(eventKey string, t Type, field, tv, sv string, sev Severity, comment string) Break {
	return Break{
		ID:          uuid.NewString(),
		EventKey:    eventKey,
		Type:        t,
		Field:       field,
		TargetValue: tv,
		SourceValue: sv,
		Severity:    sev,
		Comment:     comment,
	}
}

// dedupeKey collapses identical findings even when several underlying
// rows would have produced them.
type dedupeKey struct {
	eventKey    string
	breakType   Type
	targetValue string
	sourceValue string
}

func (b *Break) dedupe() dedupeKey {
	return dedupeKey{
		eventKey:    b.EventKey,
		breakType:   b.Type,
		targetValue: b.TargetValue,
		sourceValue: b.SourceValue,
	}
}
