package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/recon/pkg/audit"
)

const testHeader = "coac_event_key,isin,ex_date,gross_amount,tax_amount,net_amount,currency,record_date,payment_date,account\n"

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(testHeader+body), 0o644))
	return path
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New("test", "none", "today")
	require.NoError(t, err)
	return a
}

func TestNewApp(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, "test", a.Version())
	assert.NotNil(t, a.Config())
	assert.NotNil(t, a.Logger())
}

func TestRunCommandCleanPair(t *testing.T) {
	dir := t.TempDir()
	row := "DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-12,ACC-1\n"
	target := writeCSV(t, dir, "ledger.csv", row)
	source := writeCSV(t, dir, "custodian.csv", row)
	out := filepath.Join(dir, "report.json")

	a := newTestApp(t)
	err := a.Execute(context.Background(), []string{
		"run", "--target", target, "--source", source, "--out", out, "-q",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var r audit.Report
	require.NoError(t, json.Unmarshal(raw, &r))
	require.NoError(t, audit.Verify(&r))
	assert.Empty(t, r.Breaks)
	assert.False(t, r.CriticalIssues)
}

func TestRunCommandParksAndWritesPending(t *testing.T) {
	dir := t.TempDir()
	target := writeCSV(t, dir, "ledger.csv",
		"DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-12,ACC-1\n")
	source := writeCSV(t, dir, "custodian.csv",
		"DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-13,ACC-1\n")
	out := filepath.Join(dir, "report.json")
	pending := filepath.Join(dir, "pending.json")

	a := newTestApp(t)
	err := a.Execute(context.Background(), []string{
		"run", "--target", target, "--source", source, "--out", out, "--pending", pending, "-q",
	})
	require.NoError(t, err)

	assert.NoFileExists(t, out)
	raw, err := os.ReadFile(pending)
	require.NoError(t, err)
	var pf PendingFile
	require.NoError(t, json.Unmarshal(raw, &pf))
	require.Len(t, pf.Candidates, 1)
	assert.Equal(t, "date_mismatch", pf.Candidates[0].BreakType)
	assert.Contains(t, pf.Candidates[0].Key, "|date_mismatch")
}

func TestRunCommandAutoApprove(t *testing.T) {
	dir := t.TempDir()
	target := writeCSV(t, dir, "ledger.csv",
		"DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-12,ACC-1\n")
	source := writeCSV(t, dir, "custodian.csv",
		"DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-13,ACC-1\n")
	out := filepath.Join(dir, "report.json")

	a := newTestApp(t)
	err := a.Execute(context.Background(), []string{
		"run", "--target", target, "--source", source, "--out", out,
		"--auto-approve", "--by", "ops@desk", "-q",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var r audit.Report
	require.NoError(t, json.Unmarshal(raw, &r))
	require.NoError(t, audit.Verify(&r))
	require.Len(t, r.Corrections, 1)
	assert.True(t, r.Corrections[0].AutoApplied)
	require.Len(t, r.Classifications, 1)
	assert.Equal(t, "ops@desk", r.Classifications[0].AcceptedBy)
}

func TestApproveCommandResumesRun(t *testing.T) {
	dir := t.TempDir()
	target := writeCSV(t, dir, "ledger.csv",
		"DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-12,ACC-1\n")
	source := writeCSV(t, dir, "custodian.csv",
		"DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-13,ACC-1\n")
	out := filepath.Join(dir, "report.json")
	pending := filepath.Join(dir, "pending.json")

	a := newTestApp(t)
	require.NoError(t, a.Execute(context.Background(), []string{
		"run", "--target", target, "--source", source, "--out", out, "--pending", pending, "-q",
	}))

	raw, err := os.ReadFile(pending)
	require.NoError(t, err)
	var pf PendingFile
	require.NoError(t, json.Unmarshal(raw, &pf))
	require.Len(t, pf.Candidates, 1)

	decisions := DecisionsFile{
		AcceptedBy: "ops@desk",
		Decisions:  map[string]bool{pf.Candidates[0].Key: true},
	}
	decRaw, err := json.Marshal(decisions)
	require.NoError(t, err)
	decPath := filepath.Join(dir, "decisions.json")
	require.NoError(t, os.WriteFile(decPath, decRaw, 0o644))

	b := newTestApp(t)
	require.NoError(t, b.Execute(context.Background(), []string{
		"approve", "--target", target, "--source", source,
		"--decisions", decPath, "--out", out, "-q",
	}))

	outRaw, err := os.ReadFile(out)
	require.NoError(t, err)
	var r audit.Report
	require.NoError(t, json.Unmarshal(outRaw, &r))
	require.NoError(t, audit.Verify(&r))
	require.Len(t, r.Corrections, 1)
	assert.True(t, r.Corrections[0].AutoApplied)
}

func TestReportCommandVerifies(t *testing.T) {
	dir := t.TempDir()
	row := "DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-12,ACC-1\n"
	target := writeCSV(t, dir, "ledger.csv", row)
	source := writeCSV(t, dir, "custodian.csv", row)
	out := filepath.Join(dir, "report.json")

	a := newTestApp(t)
	require.NoError(t, a.Execute(context.Background(), []string{
		"run", "--target", target, "--source", source, "--out", out, "-q",
	}))

	b := newTestApp(t)
	require.NoError(t, b.Execute(context.Background(), []string{"report", out, "-q"}))
}

func TestReportCommandRejectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	row := "DIV1,US0378331005,2025-03-10,1000.00,150.00,850.00,USD,2025-03-11,2025-03-12,ACC-1\n"
	target := writeCSV(t, dir, "ledger.csv", row)
	source := writeCSV(t, dir, "custodian.csv", row)
	out := filepath.Join(dir, "report.json")

	a := newTestApp(t)
	require.NoError(t, a.Execute(context.Background(), []string{
		"run", "--target", target, "--source", source, "--out", out, "-q",
	}))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var r audit.Report
	require.NoError(t, json.Unmarshal(raw, &r))
	r.Records[0].Narrative = "doctored"
	tampered, err := json.Marshal(&r)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(out, tampered, 0o644))

	b := newTestApp(t)
	err = b.Execute(context.Background(), []string{"report", out, "-q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash chain")
}

func TestRunCommandMissingInputFails(t *testing.T) {
	a := newTestApp(t)
	err := a.Execute(context.Background(), []string{
		"run", "--target", "/does/not/exist.csv", "--source", "/does/not/exist.csv", "-q",
	})
	assert.Error(t, err)
}
