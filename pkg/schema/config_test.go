package schema_test

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/recon/pkg/schema"
)

func TestDefaultConfig(t *testing.T) {
	cfg := schema.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.01", cfg.AmountTolerance.String())
	assert.Equal(t, 1, cfg.DateBucketBusinessDays)
	assert.Equal(t, 70, cfg.ConfidenceCutoff)
	assert.Equal(t, 30*time.Minute, cfg.ConfirmationTimeout.Duration)
	assert.True(t, cfg.IsJoinKey(schema.FieldISIN))
	assert.False(t, cfg.IsJoinKey(schema.FieldPaymentDate))
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	profile := `
amount_tolerance: "0.05"
confidence_cutoff: 80
confirmation_timeout: "2h"
contextual:
  - target: account
    source: depot_ref
`
	cfg, err := schema.LoadConfig(strings.NewReader(profile))
	require.NoError(t, err)

	assert.Equal(t, "0.05", cfg.AmountTolerance.String())
	assert.Equal(t, 80, cfg.ConfidenceCutoff)
	assert.Equal(t, 2*time.Hour, cfg.ConfirmationTimeout.Duration)
	require.Len(t, cfg.Contextual, 1)
	assert.Equal(t, "depot_ref", cfg.Contextual[0].Source)

	// Untouched defaults survive the overlay.
	assert.Equal(t, 1, cfg.DateBucketBusinessDays)
	assert.NotEmpty(t, cfg.Fields)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		profile string
	}{
		{"negative tolerance", `amount_tolerance: "-0.01"`},
		{"cutoff out of range", `confidence_cutoff: 250`},
		{"compared date as join key", "join_key_fields:\n  - payment_date"},
		{"bad derived op", "derived:\n  - target: net_amount\n    op: divide\n    operands: [a, b]"},
		{"single operand", "derived:\n  - target: net_amount\n    op: sum\n    operands: [a]"},
		{"not yaml", `{{nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.LoadConfig(strings.NewReader(tt.profile))
			assert.Error(t, err)
		})
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := schema.DefaultConfig()

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var back schema.Config
	require.NoError(t, yaml.Unmarshal(out, &back))

	assert.True(t, cfg.AmountTolerance.Equal(back.AmountTolerance.Decimal))
	assert.Equal(t, cfg.ConfirmationTimeout.Duration, back.ConfirmationTimeout.Duration)
	assert.Equal(t, cfg.JoinKeyFields, back.JoinKeyFields)
	assert.Equal(t, len(cfg.Fields), len(back.Fields))
}

func TestSpecFallsBackToString(t *testing.T) {
	cfg := schema.DefaultConfig()

	spec := cfg.Spec("free_text_note")
	assert.Equal(t, schema.TypeString, spec.Type)
	assert.False(t, spec.Critical)

	gross := cfg.Spec(schema.FieldGross)
	assert.Equal(t, schema.TypeAmount, gross.Type)
	assert.True(t, gross.Critical)
}
