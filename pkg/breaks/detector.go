package breaks

import (
	"context"
	"strings"

	"github.com/custodia/recon/pkg/events"
	"github.com/custodia/recon/pkg/logging"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/tabular"
)

// criticalComment annotates breaks emitted under an unreliable plan.
const criticalComment = "upstream mapping unreliable, severity forced to major"

// amountFields are the monetary members of the fixed compare set.
var amountFields = []string{schema.FieldGross, schema.FieldTax, schema.FieldNet}

// dateFields are the date members of the fixed compare set.
var dateFields = []string{schema.FieldRecordDate, schema.FieldPaymentDate}

// Detect compares every matched event in the fixed field set
// {gross, tax, net, currency, record_date, payment_date, account} and
// returns the deduplicated break list. The result is never nil: zero
// breaks is an empty slice.
//
// When the mapping plan is critical, detection still runs over all
// events but every break is escalated to major and annotated.
func Detect(ctx context.Context, evs []events.EconomicEvent, plan *schema.MappingPlan, cfg *schema.Config) []Break {
	if cfg == nil {
		cfg = schema.DefaultConfig()
	}
	log := logging.Ctx(ctx)

	out := []Break{}
	seen := make(map[dedupeKey]bool)

	emit := func(b Break) {
		if plan != nil && plan.Critical {
			b.Severity = SeverityMajor
			if b.Comment != "" {
				b.Comment += "; " + criticalComment
			} else {
				b.Comment = criticalComment
			}
		}
		k := b.dedupe()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, b)
	}

	for i := range evs {
		ev := &evs[i]
		if ev.Missing() {
			emit(missingRecordBreak(ev))
			continue
		}
		compareEvent(ev, cfg, emit)
	}

	log.Info().Int("events", len(evs)).Int("breaks", len(out)).
		Bool("critical_plan", plan != nil && plan.Critical).Msg("break detection complete")
	return out
}

func missingRecordBreak(ev *events.EconomicEvent) Break {
	comment := "event present only in target ledger"
	tv, sv := "present", "absent"
	if ev.PresentIn == events.PresentInSource {
		comment = "event present only in custody source"
		tv, sv = "absent", "present"
	}
	return newBreak(ev.Key, TypeMissingRecord, "", tv, sv, SeverityMajor, comment)
}

// compareEvent walks the fixed compare set for one both-sided event.
// Fields missing from either view were already reported as mapping
// gaps and are skipped here.
func compareEvent(ev *events.EconomicEvent, cfg *schema.Config, emit func(Break)) {
	for _, field := range amountFields {
		tv, sv, ok := viewPair(ev, field)
		if !ok {
			continue
		}
		td, okT := tabular.CoerceDecimal(tv)
		sd, okS := tabular.CoerceDecimal(sv)
		if !okT || !okS {
			continue
		}
		diff := td.Sub(sd).Abs()
		if diff.LessThanOrEqual(cfg.AmountTolerance.Decimal) {
			continue
		}
		sev := SeverityModerate
		if major := cfg.MajorAmountRatio.Mul(td.Abs()); td.IsZero() || diff.GreaterThan(major) {
			sev = SeverityMajor
		}
		emit(newBreak(ev.Key, TypeAmountMismatch, field, tv, sv, sev,
			field+" differs by "+diff.String()))
	}

	if tv, sv, ok := viewPair(ev, schema.FieldCurrency); ok {
		tc, okT := tabular.CoerceCurrency(tv)
		sc, okS := tabular.CoerceCurrency(sv)
		if (okT && okS && tc != sc) || (okT != okS) || (!okT && !okS && tv != sv) {
			emit(newBreak(ev.Key, TypeCurrencyMismatch, schema.FieldCurrency, tv, sv,
				SeverityModerate, "settlement currency differs"))
		}
	}

	for _, field := range dateFields {
		tv, sv, ok := viewPair(ev, field)
		if !ok {
			continue
		}
		td, okT := tabular.CoerceDate(tv, cfg.DateLayouts)
		sd, okS := tabular.CoerceDate(sv, cfg.DateLayouts)
		if !okT || !okS || td.Equal(sd) {
			continue
		}
		sev := SeverityMinor
		if BusinessDaysBetween(td, sd) > cfg.DateBucketBusinessDays {
			sev = SeverityModerate
		}
		emit(newBreak(ev.Key, TypeDateMismatch, field, tv, sv, sev, field+" differs"))
	}

	// An account difference on a matched event means the cash landed
	// under another account: the expected booking is missing there.
	if tv, sv, ok := viewPair(ev, schema.FieldAccount); ok && !equalFold(tv, sv) {
		emit(newBreak(ev.Key, TypeMissingRecord, schema.FieldAccount, tv, sv,
			SeverityModerate, "event booked under a different account"))
	}
}

func viewPair(ev *events.EconomicEvent, field string) (string, string, bool) {
	tv, okT := ev.TargetView[field]
	sv, okS := ev.SourceView[field]
	if !okT || !okS || tv == "" || sv == "" {
		return "", "", false
	}
	return tv, sv, true
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
