// Package schema validates structural compatibility of the two ledgers
// and builds the column mapping plan every later stage consumes.
//
// Alignment never raises business-level gaps as errors. An unmapped
// field, an uncoercible value, a broken net identity: all of it lands
// on the plan as data, and only malformed input aborts the run.
package schema

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/custodia/recon/pkg/errors"
	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/tabular"
)

// Align builds the MappingPlan for one run. Each target field is
// resolved by the first successful strategy in the fixed ladder
// direct, derived, aggregated, contextual; fields no strategy resolves
// are reported on the plan, never dropped.
func Align(ctx context.Context, target, source *tabular.Dataset, cfg *Config) (*MappingPlan, error) {
	if target == nil || source == nil {
		return nil, errors.NewSchemaError("", "both datasets are required")
	}
	if len(target.Header) == 0 {
		return nil, errors.NewSchemaError(target.Name, "no columns")
	}
	if len(source.Header) == 0 {
		return nil, errors.NewSchemaError(source.Name, "no columns")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log := logging.Ctx(ctx)
	plan := &MappingPlan{
		Mappings:           []ColumnMapping{},
		UnmappedTarget:     []string{},
		UnmappedSource:     []string{},
		DatatypeMismatches: []DatatypeMismatch{},
		ManualReview:       []ManualReviewEntry{},
	}

	sourceFields := source.Fields()
	consumed := make(map[string]bool)

	for _, field := range target.Header {
		spec := cfg.Spec(field)

		probeField(plan, cfg, target, field, spec)

		mapping, ok := resolve(cfg, field, spec, sourceFields)
		if !ok {
			plan.UnmappedTarget = append(plan.UnmappedTarget, field)
			plan.ManualReview = append(plan.ManualReview, ManualReviewEntry{
				Field:  field,
				Reason: (&errors.MappingGapError{Field: field, Reason: "no direct, derived, aggregated or contextual candidate in source"}).Error(),
			})
			if cfg.IsJoinKey(field) {
				plan.markCritical("join key field " + field + " unmapped")
			}
			if field == FieldGross || field == FieldTax || field == FieldNet {
				plan.markCritical("net = gross - tax cannot be reconciled: " + field + " unmapped")
			}
			continue
		}

		for _, sf := range mapping.SourceFields {
			consumed[sf] = true
			probeField(plan, cfg, source, sf, sourceSpec(mapping, sf, spec))
		}
		plan.Mappings = append(plan.Mappings, mapping)
	}

	for _, sf := range source.Header {
		if !consumed[sf] {
			plan.UnmappedSource = append(plan.UnmappedSource, sf)
		}
	}

	checkNetIdentity(plan, cfg, target, source)

	log.Info().
		Int("mapped", len(plan.Mappings)).
		Int("unmapped_target", len(plan.UnmappedTarget)).
		Int("datatype_mismatches", len(plan.DatatypeMismatches)).
		Bool("critical", plan.Critical).
		Msg("mapping plan built")

	return plan, nil
}

// resolve walks the strategy ladder for one target field. First hit wins.
func resolve(cfg *Config, field string, spec FieldSpec, sourceFields map[string]bool) (ColumnMapping, bool) {
	// Direct: exact normalized name, then declared synonyms.
	if sourceFields[field] {
		return ColumnMapping{
			TargetField:  field,
			SourceFields: []string{field},
			Kind:         KindDirect,
			Confidence:   confidenceDirectExact,
		}, true
	}
	for _, syn := range spec.Synonyms {
		if sourceFields[tabular.NormalizeField(syn)] {
			return ColumnMapping{
				TargetField:  field,
				SourceFields: []string{tabular.NormalizeField(syn)},
				Kind:         KindDirect,
				Confidence:   confidenceDirectSynonym,
			}, true
		}
	}

	// Derived: a formula whose operands all exist in the source.
	for _, rule := range cfg.Derived {
		if rule.Target != field {
			continue
		}
		if allPresent(rule.Operands, sourceFields) {
			return ColumnMapping{
				TargetField:  field,
				SourceFields: rule.Operands,
				Kind:         KindDerived,
				Formula:      rule.Formula(),
				Op:           rule.Op,
				Confidence:   confidenceDerived,
			}, true
		}
	}

	// Aggregated: a group-by reduction over source rows.
	for _, rule := range cfg.Aggregated {
		if rule.Target != field {
			continue
		}
		if sourceFields[rule.SourceField] && allPresent(rule.GroupBy, sourceFields) {
			return ColumnMapping{
				TargetField:  field,
				SourceFields: []string{rule.SourceField},
				Kind:         KindAggregated,
				Formula:      "sum(" + rule.SourceField + ")",
				GroupBy:      rule.GroupBy,
				Op:           OpSum,
				Confidence:   confidenceAggregated,
			}, true
		}
	}

	// Contextual: configured metadata equivalence, never for amounts.
	if spec.Type != TypeAmount {
		for _, rule := range cfg.Contextual {
			if rule.Target == field && sourceFields[rule.Source] {
				return ColumnMapping{
					TargetField:  field,
					SourceFields: []string{rule.Source},
					Kind:         KindContextual,
					Confidence:   confidenceContextual,
				}, true
			}
		}
	}

	return ColumnMapping{}, false
}

// probeField tests every non-empty value of one column against the
// declared type and records a DatatypeMismatch when any fails. A
// critical amount column that cannot be coerced flags the whole plan.
func probeField(plan *MappingPlan, cfg *Config, ds *tabular.Dataset, field string, spec FieldSpec) {
	if spec.Type == TypeString || !ds.HasField(field) {
		return
	}

	failures := 0
	sample := ""
	for _, row := range ds.Rows {
		v := row[field]
		if v == "" {
			continue
		}
		if !coercible(v, spec.Type, cfg.DateLayouts) {
			failures++
			if sample == "" {
				sample = v
			}
		}
	}
	if failures == 0 {
		return
	}

	plan.DatatypeMismatches = append(plan.DatatypeMismatches, DatatypeMismatch{
		Dataset: ds.Name,
		Field:   field,
		Type:    spec.Type,
		Sample:  sample,
		Rows:    failures,
	})
	if spec.Critical && spec.Type == TypeAmount {
		plan.markCritical("critical numeric field " + field + " is not coercible in " + ds.Name)
	}
}

func coercible(v string, t FieldType, layouts []string) bool {
	switch t {
	case TypeAmount:
		_, ok := tabular.CoerceDecimal(v)
		return ok
	case TypeDate:
		_, ok := tabular.CoerceDate(v, layouts)
		return ok
	case TypeCurrency:
		_, ok := tabular.CoerceCurrency(v)
		return ok
	default:
		return true
	}
}

// checkNetIdentity verifies net = gross - tax within tolerance on both
// sides: over the target rows directly, and over the source rows after
// mapping resolution. A broken identity on either side means the
// financial core of the mapping cannot be trusted.
func checkNetIdentity(plan *MappingPlan, cfg *Config, target, source *tabular.Dataset) {
	if target.HasField(FieldGross) && target.HasField(FieldTax) && target.HasField(FieldNet) {
		for i, row := range target.Rows {
			gross, okG := tabular.CoerceDecimal(row[FieldGross])
			tax, okT := tabular.CoerceDecimal(row[FieldTax])
			net, okN := tabular.CoerceDecimal(row[FieldNet])
			if !okG || !okT || !okN {
				continue
			}
			if net.Sub(gross.Sub(tax)).Abs().GreaterThan(cfg.AmountTolerance.Decimal) {
				plan.markCritical(fmt.Sprintf(
					"net != gross - tax beyond tolerance in %s row %d", target.Name, i+2))
				break
			}
		}
	}

	for i, row := range source.Rows {
		gross, okG := resolvedAmount(plan, FieldGross, row)
		tax, okT := resolvedAmount(plan, FieldTax, row)
		net, okN := resolvedAmount(plan, FieldNet, row)
		if !okG || !okT || !okN {
			continue
		}
		if net.Sub(gross.Sub(tax)).Abs().GreaterThan(cfg.AmountTolerance.Decimal) {
			plan.markCritical(fmt.Sprintf(
				"net != gross - tax beyond tolerance in %s row %d after mapping resolution", source.Name, i+2))
			break
		}
	}
}

// resolvedAmount evaluates one mapped amount field over a single
// source row. Aggregated mappings reduce across rows and have no
// per-row value, so they are skipped.
func resolvedAmount(plan *MappingPlan, field string, row tabular.Record) (decimal.Decimal, bool) {
	m, ok := plan.MappingFor(field)
	if !ok || m.Kind == KindAggregated {
		return decimal.Zero, false
	}
	acc, ok := tabular.CoerceDecimal(row[m.SourceFields[0]])
	if !ok {
		return decimal.Zero, false
	}
	for _, f := range m.SourceFields[1:] {
		v, ok := tabular.CoerceDecimal(row[f])
		if !ok {
			return decimal.Zero, false
		}
		if m.Kind == KindDerived && m.Op == OpDifference {
			acc = acc.Sub(v)
		} else {
			acc = acc.Add(v)
		}
	}
	return acc, true
}

// sourceSpec picks the coercion type to probe a mapped source field
// with: formula operands and aggregation inputs must be amounts, while
// direct and contextual mappings inherit the target field's type.
func sourceSpec(m ColumnMapping, sourceField string, targetSpec FieldSpec) FieldSpec {
	switch m.Kind {
	case KindDerived, KindAggregated:
		return FieldSpec{Name: sourceField, Type: TypeAmount, Critical: targetSpec.Critical}
	default:
		return FieldSpec{Name: sourceField, Type: targetSpec.Type, Critical: targetSpec.Critical}
	}
}

func allPresent(fields []string, set map[string]bool) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !set[f] {
			return false
		}
	}
	return true
}
