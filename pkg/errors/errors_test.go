package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia/recon/pkg/errors"
)

func TestSchemaError(t *testing.T) {
	err := errors.NewSchemaError("custody", "row 14 has 9 columns, header has 11")

	assert.True(t, stderrors.Is(err, errors.ErrSchema))
	assert.Contains(t, err.Error(), "custody")
	assert.Contains(t, err.Error(), "row 14")

	var schemaErr *errors.SchemaError
	assert.True(t, stderrors.As(err, &schemaErr))
	assert.Equal(t, "custody", schemaErr.Dataset)
}

func TestSchemaErrorWrapped(t *testing.T) {
	err := fmt.Errorf("loading target: %w", errors.NewSchemaError("ledger", "no header row"))

	assert.True(t, errors.IsSchema(err))
	assert.True(t, errors.IsFatal(err))
}

func TestMappingGapError(t *testing.T) {
	err := &errors.MappingGapError{Field: "settlement_currency", Reason: "no source candidate"}

	assert.True(t, stderrors.Is(err, errors.ErrMappingGap))
	assert.False(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "settlement_currency")
}

func TestUpstreamCriticalError(t *testing.T) {
	err := &errors.UpstreamCriticalError{Stage: "detector", Reason: "join key unmapped"}

	assert.True(t, stderrors.Is(err, errors.ErrUpstreamCritical))
	assert.False(t, errors.IsFatal(err))
}

func TestConfirmationTimeoutError(t *testing.T) {
	err := &errors.ConfirmationTimeoutError{
		RunID:   "9f2d",
		Waited:  30 * time.Minute,
		Pending: 3,
	}

	assert.True(t, errors.IsConfirmationTimeout(err))
	assert.False(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "9f2d")
	assert.Contains(t, err.Error(), "3 breaks pending")
}

func TestValidationError(t *testing.T) {
	err := errors.NewValidationError("amount_tolerance", "-1", "must not be negative")

	assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "amount_tolerance")

	noField := errors.NewValidationError("", nil, "empty config")
	assert.Equal(t, "validation failed: empty config", noField.Error())
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"schema", errors.ErrSchema, true},
		{"canceled", errors.ErrCanceled, true},
		{"mapping gap", errors.ErrMappingGap, false},
		{"upstream critical", errors.ErrUpstreamCritical, false},
		{"confirmation timeout", errors.ErrConfirmationTimeout, false},
		{"plain", stderrors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, errors.IsFatal(tt.err))
		})
	}
}
