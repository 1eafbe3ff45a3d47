package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/paragon-ops/govalid/pkg/audit"
	"github.com/paragon-ops/govalid/pkg/catalog"
	"github.com/paragon-ops/govalid/pkg/config"
	"github.com/paragon-ops/govalid/pkg/engine"
	"github.com/paragon-ops/govalid/pkg/gates"
	"github.com/paragon-ops/govalid/pkg/ledger"
	"github.com/paragon-ops/govalid/pkg/report"
	"github.com/paragon-ops/govalid/pkg/rubric"
)

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		protocolID  string
		all         bool
		catalogPath string
		ledgerPath  string
		rubricPath  string
		waiversPath string
		outputDir   string
		sqlitePath  string
		workers     int
	)
	cmd.StringVar(&protocolID, "protocol", "", "Validate a single protocol by id")
	cmd.BoolVar(&all, "all", false, "Validate every protocol in the catalog")
	cmd.StringVar(&catalogPath, "catalog", "", "Path to the catalog YAML (REQUIRED)")
	cmd.StringVar(&ledgerPath, "ledger", cfg.LedgerPath, "Path to the JSONL ledger snapshot")
	cmd.StringVar(&rubricPath, "rubric", "", "Rubric YAML file or directory of per-protocol rubrics")
	cmd.StringVar(&waiversPath, "waivers", "", "Optional YAML waiver document")
	cmd.StringVar(&outputDir, "output", cfg.OutputDir, "Directory for JSON artifacts")
	cmd.StringVar(&sqlitePath, "sqlite", cfg.SQLitePath, "Optional SQLite ledger database (used when no --ledger file is given)")
	cmd.IntVar(&workers, "workers", cfg.Workers, "Worker pool size for per-protocol validation")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if catalogPath == "" {
		fmt.Fprintln(stderr, "Error: --catalog is required")
		cmd.Usage()
		return 2
	}
	if protocolID == "" && !all {
		fmt.Fprintln(stderr, "Error: pass --protocol <id> or --all")
		cmd.Usage()
		return 2
	}
	if ledgerPath == "" && sqlitePath == "" {
		fmt.Fprintln(stderr, "Error: --ledger or --sqlite is required")
		cmd.Usage()
		return 2
	}

	logger := newLogger(stderr, cfg.LogLevel)
	auditor := audit.NewLoggerWithWriter(stderr)

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		// Malformed catalogs abort the run before any evaluation.
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	snapshot, code := loadSnapshot(ledgerPath, sqlitePath, auditor, logger, stderr)
	if code != 0 {
		return code
	}
	if err := snapshot.Verify(); err != nil {
		fmt.Fprintf(stderr, "Error: ledger chain verification failed: %v\n", err)
		return 2
	}

	rubrics, rubricErrs, err := loadRubrics(rubricPath, cat, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var waivers []gates.Waiver
	if waiversPath != "" {
		waivers, err = gates.LoadWaivers(waiversPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	eng, err := engine.New(engine.Options{
		Catalog:      cat,
		Snapshot:     snapshot,
		Rubrics:      rubrics,
		RubricErrors: rubricErrs,
		Waivers:      waivers,
		Workers:      workers,
		Auditor:      auditor,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ids []string
	if protocolID != "" {
		ids = []string{protocolID}
	}

	result, err := eng.Run(ctx, ids)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	writer, err := report.NewWriter(outputDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	for i := range result.Reports {
		if err := writer.WriteProtocolResult(&result.Reports[i]); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	if err := writer.WriteArtifacts(result.Artifacts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	printSummary(stdout, result)
	return engine.WorstExitCode(result.Reports)
}

// loadSnapshot prefers a closed JSONL ledger file; otherwise it reads the
// persistent SQLite ledger.
func loadSnapshot(ledgerPath, sqlitePath string, auditor audit.Logger, logger *slog.Logger, stderr io.Writer) (*ledger.Snapshot, int) {
	if ledgerPath != "" {
		store := ledger.NewStore()
		loadReport, err := ledger.LoadFile(ledgerPath, store, auditor)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return nil, 2
		}
		if len(loadReport.Skipped) > 0 {
			logger.Warn("ledger events skipped during ingest",
				"total", loadReport.Total,
				"skipped", len(loadReport.Skipped),
			)
		}
		return store.Snapshot(), 0
	}

	db, err := ledger.OpenSQLite(sqlitePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 2
	}
	defer db.Close()

	snapshot, err := db.Snapshot(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 2
	}
	return snapshot, 0
}

// loadRubrics accepts a single rubric file or a directory of rubrics.
// A bad rubric isolates to its protocol; the engine reports it incomplete.
func loadRubrics(path string, cat *catalog.Catalog, logger *slog.Logger) (map[string]*rubric.Rubric, map[string]string, error) {
	if path == "" {
		return nil, nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat rubric path %s: %w", path, err)
	}

	rubricErrs := make(map[string]string)

	if !info.IsDir() {
		r, err := rubric.Load(path)
		if err != nil {
			var loadErr *rubric.LoadError
			if errors.As(err, &loadErr) {
				if _, ok := cat.Protocol(loadErr.Subject); ok {
					rubricErrs[loadErr.Subject] = loadErr.Reason
					return nil, rubricErrs, nil
				}
			}
			return nil, nil, err
		}
		return map[string]*rubric.Rubric{r.ProtocolID: r}, nil, nil
	}

	rubrics, errs := rubric.LoadDir(path)
	for _, err := range errs {
		var loadErr *rubric.LoadError
		if errors.As(err, &loadErr) {
			if _, ok := cat.Protocol(loadErr.Subject); ok {
				rubricErrs[loadErr.Subject] = loadErr.Reason
				continue
			}
		}
		logger.Warn("rubric skipped", "error", err)
	}
	return rubrics, rubricErrs, nil
}

func printSummary(w io.Writer, result *engine.RunResult) {
	for _, row := range result.Artifacts.Matrix {
		status := string(row.Status)
		if row.Incomplete {
			status = "INCOMPLETE"
		}
		fmt.Fprintf(w, "%-8s gates=%-12s score=%.3f %s\n",
			row.ProtocolID, row.GateState, row.OverallScore, status)
	}
	critical := 0
	for _, f := range result.Artifacts.Cycles.Findings {
		if f.Severity == "critical" {
			critical++
		}
	}
	fmt.Fprintf(w, "cycles: %d finding(s), %d critical\n",
		len(result.Artifacts.Cycles.Findings), critical)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
