// Package tabular handles ingestion of header-named tabular datasets.
// It accepts CSV and XLSX inputs, normalizes header names so the same
// economic field unifies across differently formatted files, and offers
// the coercion helpers the schema aligner probes with.
//
// Malformed structure (no header, ragged rows, duplicate columns) is a
// SchemaError and aborts ingestion. Values that fail coercion are not
// errors here; the aligner records them as datatype mismatches.
package tabular

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia/recon/pkg/errors"
)

// Record is one row keyed by normalized header name.
type Record map[string]string

// Get returns the value for a normalized field name.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// Dataset is an ordered collection of records sharing one header.
type Dataset struct {
	// Name identifies the dataset in errors and logs (e.g. "ledger",
	// "custody").
	Name string

	// Header holds normalized column names in file order.
	Header []string

	// Rows holds the records in file order.
	Rows []Record
}

// Fields returns the set of header names.
func (d *Dataset) Fields() map[string]bool {
	fields := make(map[string]bool, len(d.Header))
	for _, h := range d.Header {
		fields[h] = true
	}
	return fields
}

// HasField reports whether the dataset carries the given normalized field.
func (d *Dataset) HasField(field string) bool {
	for _, h := range d.Header {
		if h == field {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Column returns all values of one field in row order.
func (d *Dataset) Column(field string) []string {
	values := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		values = append(values, row[field])
	}
	return values
}

// NormalizeField folds a raw header name to snake_case so that
// "GROSS AMOUNT", "GrossAmount" and "gross_amount" all unify.
func NormalizeField(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	prevLower := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '/':
			r = '_'
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteRune('_')
			}
			r = unicode.ToLower(r)
		}
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		b.WriteRune(r)
	}

	// Collapse runs of underscores left by mixed separators.
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

// newDataset validates a raw header+rows table and builds a Dataset.
// Structural problems return a SchemaError naming the dataset.
func newDataset(name string, header []string, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, errors.NewSchemaError(name, "no header row")
	}

	normalized := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		n := NormalizeField(h)
		if n == "" {
			return nil, errors.NewSchemaError(name, "empty column name in header")
		}
		if seen[n] {
			return nil, errors.NewSchemaError(name, "duplicate column "+n)
		}
		seen[n] = true
		normalized[i] = n
	}

	ds := &Dataset{
		Name:   name,
		Header: normalized,
		Rows:   make([]Record, 0, len(rows)),
	}

	for i, row := range rows {
		if len(row) != len(normalized) {
			return nil, &errors.SchemaError{
				Dataset: name,
				Detail:  rowWidthDetail(i, len(row), len(normalized)),
			}
		}
		rec := make(Record, len(normalized))
		for j, field := range normalized {
			rec[field] = strings.TrimSpace(row[j])
		}
		ds.Rows = append(ds.Rows, rec)
	}

	return ds, nil
}

func rowWidthDetail(rowIdx, got, want int) string {
	// Row numbers are reported 1-based counting the header row.
	return fmt.Sprintf("row %d has %d columns, header has %d", rowIdx+2, got, want)
}
