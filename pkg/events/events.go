// Package events groups rows from both ledgers into comparable economic
// events using the composite join key and the mapping plan.
package events

import (
	"strings"

	"github.com/custodia/recon/pkg/tabular"
)

// Presence records which side(s) of the reconciliation an event
// appeared on.
type Presence string

// Presence values.
const (
	PresentInTarget Presence = "target"
	PresentInSource Presence = "source"
	PresentInBoth   Presence = "both"
)

// EconomicEvent is one reconciled unit (e.g. one dividend cash event).
// Views hold normalized field values keyed by target field name; the
// source view has already been translated through the mapping plan.
type EconomicEvent struct {
	Key        string            `json:"event_key"`
	TargetView map[string]string `json:"target_view,omitempty"`
	SourceView map[string]string `json:"source_view,omitempty"`
	PresentIn  Presence          `json:"present_in"`
}

// Missing reports whether the event is absent from one side.
func (e *EconomicEvent) Missing() bool {
	return e.PresentIn != PresentInBoth
}

// BuildKey composes the event key from join-key field values in
// configured order. Values are case-folded and trimmed so cosmetic
// differences between ledgers do not split events.
func BuildKey(fields []string, lookup func(field string) string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, strings.ToUpper(strings.TrimSpace(lookup(f))))
	}
	return strings.Join(parts, "|")
}

// keyFromRecord builds an event key straight from a record's own fields.
func keyFromRecord(fields []string, rec tabular.Record) string {
	return BuildKey(fields, func(f string) string { return rec[f] })
}
