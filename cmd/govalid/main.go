// Command govalid is the batch Protocol Governance Validation Engine.
// It walks an append-only gate-event ledger against a protocol catalog,
// detects and corroborates handoff cycles, scores compliance rubrics and
// emits deterministic JSON artifacts.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "govalid — protocol governance validation engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  govalid <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  validate   Validate protocols against the catalog, ledger and rubrics")
	fmt.Fprintln(w, "             (--protocol <id> | --all, --catalog, --ledger, --rubric,")
	fmt.Fprintln(w, "              --waivers, --output)")
	fmt.Fprintln(w, "  verify     Verify a ledger file's hash chain and ordering (--ledger)")
	fmt.Fprintln(w, "  help       Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "EXIT CODES:")
	fmt.Fprintln(w, "  0  all validated protocols PASS")
	fmt.Fprintln(w, "  1  at least one FAIL or WARNING")
	fmt.Fprintln(w, "  2  internal error (malformed catalog, unreadable inputs)")
	fmt.Fprintln(w, "")
}
