package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testCatalog = `
version: 1.0.0
sinks: ["PMO Archive"]
protocols:
  - id: P01
    name: Proposal Drafting
    outputs_to: [P02]
    gates:
      - {id: G1, name: Draft complete, rule: {kind: boolean, all_of: [drafted]}}
      - {id: G2, name: Review done, rule: {kind: percentage, metric: review_score, threshold: 0.8}}
  - id: P02
    name: Costing
    outputs_to: ["PMO Archive"]
    gates:
      - {id: G1, name: Estimate signed, rule: {kind: boolean, all_of: [signed]}}
`

const testLedger = `{"timestamp":"2026-03-01T10:00:00Z","protocol_id":"P01","gate_id":"G1","values":{"conditions":{"drafted":true}}}
{"timestamp":"2026-03-01T10:01:00Z","protocol_id":"P01","gate_id":"G2","evidence":["handoff:P02"],"values":{"metrics":{"review_score":0.92}}}
{"timestamp":"2026-03-01T10:02:00Z","protocol_id":"P02","gate_id":"G1","evidence":["handoff:PMO Archive"],"values":{"conditions":{"signed":true}}}
`

const testRubricP01 = `
protocol_id: P01
dimensions:
  - name: completeness
    weight: 0.6
    checks:
      - {id: c1, name: all sections present, passed: true}
  - name: evidence
    weight: 0.4
    checks:
      - {id: e1, name: references resolve, passed: true}
`

const testRubricP02 = `
protocol_id: P02
dimensions:
  - name: completeness
    weight: 1.0
    checks:
      - {id: c1, name: estimate itemized, passed: true}
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fixtureDirs(t *testing.T) (catalogPath, ledgerPath, rubricDir, outDir string) {
	t.Helper()
	dir := t.TempDir()
	catalogPath = writeFixture(t, dir, "catalog.yaml", testCatalog)
	ledgerPath = writeFixture(t, dir, "ledger.jsonl", testLedger)

	rubricDir = filepath.Join(dir, "rubrics")
	require.NoError(t, os.Mkdir(rubricDir, 0o755))
	writeFixture(t, rubricDir, "p01.yaml", testRubricP01)
	writeFixture(t, rubricDir, "p02.yaml", testRubricP02)

	outDir = filepath.Join(dir, "out")
	return
}

func TestValidateAllPasses(t *testing.T) {
	catalogPath, ledgerPath, rubricDir, outDir := fixtureDirs(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "validate",
		"--all",
		"--catalog", catalogPath,
		"--ledger", ledgerPath,
		"--rubric", rubricDir,
		"--output", outDir,
	}, &stdout, &stderr)

	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.Contains(t, stdout.String(), "P01")
	require.Contains(t, stdout.String(), "PASS")

	for _, name := range []string{
		"compliance_matrix.json", "integration_map.json", "cycle_report.json",
		"result_P01.json", "result_P02.json",
	} {
		_, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, name)
	}
}

func TestValidateSingleProtocol(t *testing.T) {
	catalogPath, ledgerPath, rubricDir, outDir := fixtureDirs(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "validate",
		"--protocol", "P01",
		"--catalog", catalogPath,
		"--ledger", ledgerPath,
		"--rubric", rubricDir,
		"--output", outDir,
	}, &stdout, &stderr)

	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	_, err := os.Stat(filepath.Join(outDir, "result_P02.json"))
	require.True(t, os.IsNotExist(err), "unselected protocol must not be written")
}

func TestValidateMissingRubricIsIncomplete(t *testing.T) {
	catalogPath, ledgerPath, _, outDir := fixtureDirs(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "validate",
		"--all",
		"--catalog", catalogPath,
		"--ledger", ledgerPath,
		"--output", outDir,
	}, &stdout, &stderr)

	require.Equal(t, 2, code)
	require.Contains(t, stdout.String(), "INCOMPLETE")
}

func TestValidateMalformedCatalogAborts(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFixture(t, dir, "catalog.yaml", `
protocols:
  - id: P01
    name: One
    outputs_to: [P99]
    gates:
      - {id: G1, name: g, rule: {kind: boolean, all_of: [ok]}}
`)
	ledgerPath := writeFixture(t, dir, "ledger.jsonl", testLedger)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "validate",
		"--all", "--catalog", catalogPath, "--ledger", ledgerPath,
		"--output", filepath.Join(dir, "out"),
	}, &stdout, &stderr)

	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "malformed catalog")
}

func TestValidateRequiresFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "validate"}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "--catalog")
}

func TestVerifyCleanLedger(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := writeFixture(t, dir, "ledger.jsonl", testLedger)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "verify", "--ledger", ledgerPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	require.Contains(t, stdout.String(), "chain:    verified")
}

func TestVerifyReportsSkippedEvents(t *testing.T) {
	dir := t.TempDir()
	// Second P01 event steps backwards in time and must be skipped.
	bad := testLedger +
		`{"timestamp":"2026-03-01T09:00:00Z","protocol_id":"P01","gate_id":"G9"}` + "\n"
	ledgerPath := writeFixture(t, dir, "ledger.jsonl", bad)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "verify", "--ledger", ledgerPath}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stdout.String(), "skipped P01/G9")
}

func TestVerifyJSONOutput(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := writeFixture(t, dir, "ledger.jsonl", testLedger)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "verify", "--ledger", ledgerPath, "--json"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), `"chain_valid": true`)
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "frobnicate"}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.True(t, strings.Contains(stderr.String(), "Unknown command"))
}

func TestHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"govalid", "help"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "USAGE")
}
