package events_test

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/recon/pkg/events"
	"github.com/custodia/recon/pkg/schema"
	"github.com/custodia/recon/pkg/tabular"
)

func mustDataset(t *testing.T, name, csv string) *tabular.Dataset {
	t.Helper()
	ds, err := tabular.ReadCSV(name, strings.NewReader(csv))
	require.NoError(t, err)
	return ds
}

func align(t *testing.T, target, source *tabular.Dataset, cfg *schema.Config) *schema.MappingPlan {
	t.Helper()
	plan, err := schema.Align(context.Background(), target, source, cfg)
	require.NoError(t, err)
	return plan
}

const matchTarget = `coac_event_key,isin,ex_date,account,gross_amount,tax_amount,net_amount,currency,record_date,payment_date
EV-1,NO0010096985,2025-03-01,ACC-1,1000.00,150.00,850.00,NOK,2025-03-10,2025-03-12
EV-2,NO0010081235,2025-03-02,ACC-1,2400.50,360.08,2040.42,NOK,2025-03-11,2025-03-14
`

const matchSource = `coac_event_key,isin,ex_date,account,gross_amount,withholding_tax,net_income,ccy,record_date,pay_date
EV-1,NO0010096985,2025-03-01,ACC-1,1000.00,150.00,850.00,NOK,2025-03-10,2025-03-13
EV-3,DK0060534915,2025-03-05,ACC-2,500.00,75.00,425.00,DKK,2025-03-12,2025-03-15
`

func TestMatchPresence(t *testing.T) {
	cfg := schema.DefaultConfig()
	target := mustDataset(t, "ledger", matchTarget)
	source := mustDataset(t, "custody", matchSource)
	plan := align(t, target, source, cfg)

	evs := events.Match(context.Background(), target, source, plan, cfg)
	require.Len(t, evs, 3)

	byPresence := make(map[events.Presence]int)
	for _, ev := range evs {
		byPresence[ev.PresentIn]++
	}
	assert.Equal(t, 1, byPresence[events.PresentInBoth])
	assert.Equal(t, 1, byPresence[events.PresentInTarget])
	assert.Equal(t, 1, byPresence[events.PresentInSource])

	// Views are translated into target vocabulary.
	var both events.EconomicEvent
	for _, ev := range evs {
		if ev.PresentIn == events.PresentInBoth {
			both = ev
		}
	}
	assert.Equal(t, "850.00", both.SourceView[schema.FieldNet])
	assert.Equal(t, "150.00", both.SourceView[schema.FieldTax])
	assert.Equal(t, "2025-03-13", both.SourceView[schema.FieldPaymentDate])
	assert.Equal(t, "850.00", both.TargetView[schema.FieldNet])
	assert.False(t, both.Missing())
}

func TestMatchDerivedSourceView(t *testing.T) {
	cfg := schema.DefaultConfig()
	target := mustDataset(t, "ledger", matchTarget)
	source := mustDataset(t, "custody", `coac_event_key,isin,ex_date,account,gross_amount,tax_amount,ccy,record_date,pay_date
EV-1,NO0010096985,2025-03-01,ACC-1,1000.00,150.00,NOK,2025-03-10,2025-03-12
`)
	plan := align(t, target, source, cfg)

	evs := events.Match(context.Background(), target, source, plan, cfg)

	var ev1 *events.EconomicEvent
	for i := range evs {
		if strings.HasPrefix(evs[i].Key, "EV-1") {
			ev1 = &evs[i]
		}
	}
	require.NotNil(t, ev1)
	assert.Equal(t, events.PresentInBoth, ev1.PresentIn)
	assert.Equal(t, "850.00", ev1.SourceView[schema.FieldNet])
}

func TestMatchAggregatedOrderIndependent(t *testing.T) {
	cfg := schema.DefaultConfig()
	cfg.Aggregated = append(cfg.Aggregated, schema.AggregatedRule{
		Target:      schema.FieldGross,
		SourceField: "lot_gross",
		GroupBy:     []string{"coac_event_key"},
	})

	target := mustDataset(t, "ledger", matchTarget)
	sourceCSV := `coac_event_key,isin,ex_date,account,lot_gross,tax_amount,net_income,ccy,record_date,pay_date
EV-1,NO0010096985,2025-03-01,ACC-1,400.00,150.00,850.00,NOK,2025-03-10,2025-03-12
EV-1,NO0010096985,2025-03-01,ACC-1,350.25,150.00,850.00,NOK,2025-03-10,2025-03-12
EV-1,NO0010096985,2025-03-01,ACC-1,249.75,150.00,850.00,NOK,2025-03-10,2025-03-12
EV-2,NO0010081235,2025-03-02,ACC-1,2400.50,360.08,2040.42,NOK,2025-03-11,2025-03-14
`
	source := mustDataset(t, "custody", sourceCSV)
	plan := align(t, target, source, cfg)

	gross, ok := plan.MappingFor(schema.FieldGross)
	require.True(t, ok)
	require.Equal(t, schema.KindAggregated, gross.Kind)

	base := events.Match(context.Background(), target, source, plan, cfg)

	grossFor := func(evs []events.EconomicEvent, prefix string) string {
		for _, ev := range evs {
			if strings.HasPrefix(ev.Key, prefix) {
				return ev.SourceView[schema.FieldGross]
			}
		}
		return ""
	}
	require.Equal(t, "1000.00", grossFor(base, "EV-1"))

	// Permuting source rows within the group must not change the
	// aggregate or the event set.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := &tabular.Dataset{Name: source.Name, Header: source.Header}
		shuffled.Rows = append([]tabular.Record{}, source.Rows...)
		rng.Shuffle(len(shuffled.Rows), func(a, b int) {
			shuffled.Rows[a], shuffled.Rows[b] = shuffled.Rows[b], shuffled.Rows[a]
		})

		permuted := events.Match(context.Background(), target, shuffled, plan, cfg)
		assert.Equal(t, len(base), len(permuted))
		assert.Equal(t, "1000.00", grossFor(permuted, "EV-1"))
	}
}

func TestMatchDuplicateTargetRowsKeepFirst(t *testing.T) {
	cfg := schema.DefaultConfig()
	target := mustDataset(t, "ledger", `coac_event_key,isin,ex_date,account,gross_amount,tax_amount,net_amount,currency,record_date,payment_date
EV-1,NO0010096985,2025-03-01,ACC-1,1000.00,150.00,850.00,NOK,2025-03-10,2025-03-12
EV-1,NO0010096985,2025-03-01,ACC-1,999.00,150.00,849.00,NOK,2025-03-10,2025-03-12
`)
	source := mustDataset(t, "custody", matchSource)
	plan := align(t, target, source, cfg)

	evs := events.Match(context.Background(), target, source, plan, cfg)

	count := 0
	for _, ev := range evs {
		if strings.HasPrefix(ev.Key, "EV-1") {
			count++
			assert.Equal(t, "1000.00", ev.TargetView[schema.FieldGross])
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildKeyNormalizes(t *testing.T) {
	lookup := func(f string) string {
		return map[string]string{"isin": " no0010096985 ", "account": "acc-1"}[f]
	}
	key := events.BuildKey([]string{"isin", "account"}, lookup)
	assert.Equal(t, "NO0010096985|ACC-1", key)
}
