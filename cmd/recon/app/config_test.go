package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "stderr", cfg.LogOutput)
	assert.Empty(t, cfg.Profile)
}

func TestUpdateFromFlags(t *testing.T) {
	cfg := &Config{Profile: "from-env.yaml", LogLevel: "info"}
	cfg.UpdateFromFlags(true, false, true, "flag.yaml", "debug")

	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "flag.yaml", cfg.Profile)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestUpdateFromFlagsKeepsEnvValues(t *testing.T) {
	cfg := &Config{Profile: "from-env.yaml", LogLevel: "warn"}
	cfg.UpdateFromFlags(false, false, false, "", "")

	assert.Equal(t, "from-env.yaml", cfg.Profile)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestDetermineLogLevel(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit wins", Config{LogLevel: "trace", Verbose: true}, "trace"},
		{"invalid falls back", Config{LogLevel: "loud"}, "info"},
		{"verbose", Config{Verbose: true}, "debug"},
		{"quiet", Config{Quiet: true}, "warn"},
		{"both prefers quiet", Config{Verbose: true, Quiet: true}, "warn"},
		{"default", Config{}, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineLogLevel(&tt.cfg))
		})
	}
}
