package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/paragon-ops/govalid/pkg/audit"
	"github.com/paragon-ops/govalid/pkg/ledger"
)

// runVerifyCmd replays a ledger file offline and verifies the hash chain,
// ordering and dedup invariants without running any evaluation.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		ledgerPath string
		jsonOutput bool
	)
	cmd.StringVar(&ledgerPath, "ledger", "", "Path to the JSONL ledger snapshot (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if ledgerPath == "" {
		fmt.Fprintln(stderr, "Error: --ledger is required")
		cmd.Usage()
		return 2
	}

	store := ledger.NewStore()
	loadReport, err := ledger.LoadFile(ledgerPath, store, audit.Nop())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	snapshot := store.Snapshot()
	chainErr := snapshot.Verify()

	if jsonOutput {
		result := map[string]any{
			"ledger":      ledgerPath,
			"total":       loadReport.Total,
			"appended":    loadReport.Appended,
			"skipped":     loadReport.Skipped,
			"chain_valid": chainErr == nil,
			"head":        snapshot.Head(),
		}
		if chainErr != nil {
			result["chain_error"] = chainErr.Error()
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "events:   %d total, %d appended, %d skipped\n",
			loadReport.Total, loadReport.Appended, len(loadReport.Skipped))
		for _, s := range loadReport.Skipped {
			fmt.Fprintf(stdout, "  skipped %s/%s: %s\n", s.ProtocolID, s.GateID, s.Reason)
		}
		fmt.Fprintf(stdout, "head:     %s\n", snapshot.Head())
		if chainErr != nil {
			fmt.Fprintf(stdout, "chain:    BROKEN (%v)\n", chainErr)
		} else {
			fmt.Fprintln(stdout, "chain:    verified")
		}
	}

	if chainErr != nil || len(loadReport.Skipped) > 0 {
		return 1
	}
	return 0
}
