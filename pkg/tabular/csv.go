package tabular

import (
	"encoding/csv"
	"io"

	"github.com/custodia/recon/pkg/errors"
)

// ReadCSV parses a header-named CSV document into a Dataset. The first
// record is the header; every following record must have the same width.
// Semicolon-delimited exports are handled by ReadCSVDelim.
func ReadCSV(name string, r io.Reader) (*Dataset, error) {
	return ReadCSVDelim(name, r, ',')
}

// ReadCSVDelim parses a delimited document with an explicit separator.
func ReadCSVDelim(name string, r io.Reader, delim rune) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.TrimLeadingSpace = true
	// Width validation happens in newDataset so ragged rows surface as a
	// SchemaError rather than a csv.ParseError.
	cr.FieldsPerRecord = -1

	all, err := cr.ReadAll()
	if err != nil {
		return nil, &errors.SchemaError{Dataset: name, Detail: "unparseable csv", Err: err}
	}
	if len(all) == 0 {
		return nil, errors.NewSchemaError(name, "empty input")
	}

	return newDataset(name, all[0], all[1:])
}
