package tabular

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia/recon/pkg/errors"
)

// ReadFile loads a dataset from disk, dispatching on the file
// extension. CSV, TSV, and XLSX are supported. The dataset name is
// the file's base name without extension; sheet is only consulted for
// workbooks and may be empty.
func ReadFile(path, sheet string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewSchemaError(filepath.Base(path), err.Error())
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(name, f)
	case ".tsv":
		return ReadCSVDelim(name, f, '\t')
	case ".xlsx":
		return ReadXLSX(name, f, sheet)
	default:
		return nil, errors.NewSchemaError(name, "unsupported file extension "+filepath.Ext(path))
	}
}
