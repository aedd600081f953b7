package tabular

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/custodia/recon/pkg/errors"
)

// ReadXLSX parses one sheet of an XLSX workbook into a Dataset. An empty
// sheet name selects the workbook's first sheet. The first populated row
// is the header.
func ReadXLSX(name string, r io.Reader, sheet string) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &errors.SchemaError{Dataset: name, Detail: "unreadable workbook", Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &errors.SchemaError{Dataset: name, Detail: "sheet " + sheet + " not readable", Err: err}
	}
	if len(rows) == 0 {
		return nil, errors.NewSchemaError(name, "empty input")
	}

	header := rows[0]
	// excelize drops trailing empty cells, so pad data rows back out to
	// the header width before structural validation.
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < len(header) && len(row) > 0 {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		body = append(body, row)
	}

	return newDataset(name, header, body)
}
