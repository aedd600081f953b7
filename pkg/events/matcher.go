package events

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/tabular"
)

// Match builds the EconomicEvent set for one run. Events present on
// only one side become placeholders feeding the missing_record break
// path. The result is sorted by key so reruns are byte-stable.
func Match(ctx context.Context, target, source *tabular.Dataset, plan *schema.MappingPlan, cfg *schema.Config) []EconomicEvent {
	if cfg == nil {
		cfg = schema.DefaultConfig()
	}
	log := logging.Ctx(ctx)

	aggregates := buildAggregates(source, plan)

	// Index source rows by translated event key. All rows of one key
	// stay together: aggregated mappings reduce over them, everything
	// else reads the first row.
	sourceRows := make(map[string][]tabular.Record)
	sourceOrder := make([]string, 0, source.Len())
	for _, row := range source.Rows {
		key := sourceKey(cfg.JoinKeyFields, row, plan)
		if _, seen := sourceRows[key]; !seen {
			sourceOrder = append(sourceOrder, key)
		}
		sourceRows[key] = append(sourceRows[key], row)
	}

	byKey := make(map[string]*EconomicEvent)
	order := make([]string, 0, target.Len())

	for _, row := range target.Rows {
		key := keyFromRecord(cfg.JoinKeyFields, row)
		if _, dup := byKey[key]; dup {
			log.Warn().Str("event_key", key).Msg("duplicate target row for event key, keeping first")
			continue
		}
		ev := &EconomicEvent{
			Key:        key,
			TargetView: copyView(row),
			PresentIn:  PresentInTarget,
		}
		if rows, ok := sourceRows[key]; ok {
			ev.SourceView = translate(rows, plan, aggregates)
			ev.PresentIn = PresentInBoth
		}
		byKey[key] = ev
		order = append(order, key)
	}

	for _, key := range sourceOrder {
		if _, ok := byKey[key]; ok {
			continue
		}
		byKey[key] = &EconomicEvent{
			Key:        key,
			SourceView: translate(sourceRows[key], plan, aggregates),
			PresentIn:  PresentInSource,
		}
		order = append(order, key)
	}

	sort.Strings(order)
	out := make([]EconomicEvent, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}

	log.Info().Int("events", len(out)).Int("target_rows", target.Len()).
		Int("source_rows", source.Len()).Msg("events matched")
	return out
}

// sourceKey builds a source row's event key in target vocabulary by
// reading each join-key field through its mapping.
func sourceKey(joinFields []string, row tabular.Record, plan *schema.MappingPlan) string {
	return BuildKey(joinFields, func(f string) string {
		m, ok := plan.MappingFor(f)
		if !ok || len(m.SourceFields) == 0 {
			return ""
		}
		return row[m.SourceFields[0]]
	})
}

// aggregateKey identifies one reduction group of an aggregated mapping.
type aggregateKey struct {
	target string
	group  string
}

// buildAggregates reduces source rows for every aggregated mapping.
// Decimal addition is associative and commutative, so the reduction is
// independent of row order.
func buildAggregates(source *tabular.Dataset, plan *schema.MappingPlan) map[aggregateKey]decimal.Decimal {
	sums := make(map[aggregateKey]decimal.Decimal)
	for _, m := range plan.Mappings {
		if m.Kind != schema.KindAggregated {
			continue
		}
		for _, row := range source.Rows {
			v, ok := tabular.CoerceDecimal(row[m.SourceFields[0]])
			if !ok {
				continue
			}
			k := aggregateKey{target: m.TargetField, group: groupTuple(m.GroupBy, row)}
			sums[k] = sums[k].Add(v)
		}
	}
	return sums
}

func groupTuple(groupBy []string, row tabular.Record) string {
	parts := make([]string, 0, len(groupBy))
	for _, g := range groupBy {
		parts = append(parts, strings.ToUpper(strings.TrimSpace(row[g])))
	}
	return strings.Join(parts, "|")
}

// translate produces the source view in target vocabulary for one
// event's source rows.
func translate(rows []tabular.Record, plan *schema.MappingPlan, aggregates map[aggregateKey]decimal.Decimal) map[string]string {
	view := make(map[string]string, len(plan.Mappings))
	first := rows[0]

	for _, m := range plan.Mappings {
		switch m.Kind {
		case schema.KindDerived:
			if v, ok := derive(m, first); ok {
				view[m.TargetField] = v.String()
			}
		case schema.KindAggregated:
			k := aggregateKey{target: m.TargetField, group: groupTuple(m.GroupBy, first)}
			if sum, ok := aggregates[k]; ok {
				view[m.TargetField] = sum.String()
			}
		default:
			view[m.TargetField] = first[m.SourceFields[0]]
		}
	}
	return view
}

// derive evaluates a formula mapping over one source row. Difference
// subtracts every later operand from the first; sum adds them all.
func derive(m schema.ColumnMapping, row tabular.Record) (decimal.Decimal, bool) {
	acc, ok := tabular.CoerceDecimal(row[m.SourceFields[0]])
	if !ok {
		return decimal.Zero, false
	}
	for _, f := range m.SourceFields[1:] {
		v, ok := tabular.CoerceDecimal(row[f])
		if !ok {
			return decimal.Zero, false
		}
		if m.Op == schema.OpDifference {
			acc = acc.Sub(v)
		} else {
			acc = acc.Add(v)
		}
	}
	return acc, true
}

func copyView(rec tabular.Record) map[string]string {
	view := make(map[string]string, len(rec))
	for k, v := range rec {
		view[k] = v
	}
	return view
}
