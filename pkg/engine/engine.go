// Package engine orchestrates a validation run: graph analysis over the
// catalog and a ledger snapshot, per-protocol gate evaluation and rubric
// scoring on a worker pool, and deterministic aggregation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paragon-ops/govalid/pkg/audit"
	"github.com/paragon-ops/govalid/pkg/catalog"
	"github.com/paragon-ops/govalid/pkg/gates"
	"github.com/paragon-ops/govalid/pkg/graph"
	"github.com/paragon-ops/govalid/pkg/ledger"
	"github.com/paragon-ops/govalid/pkg/report"
	"github.com/paragon-ops/govalid/pkg/rubric"
)

// Options configures a validation run.
type Options struct {
	Catalog  *catalog.Catalog
	Snapshot *ledger.Snapshot
	// Rubrics by protocol id. A protocol whose rubric failed to load gets
	// an entry in RubricErrors instead and is reported incomplete.
	Rubrics      map[string]*rubric.Rubric
	RubricErrors map[string]string
	Waivers      []gates.Waiver
	Workers      int
	Auditor      audit.Logger
	Logger       *slog.Logger
}

// Engine executes validation runs against fixed, read-only inputs.
type Engine struct {
	opts      Options
	evaluator *gates.Evaluator
}

// New creates an engine. The catalog and snapshot are read-only inputs;
// the engine owns only derived, recomputable state.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("engine requires a catalog")
	}
	if opts.Snapshot == nil {
		return nil, fmt.Errorf("engine requires a ledger snapshot")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rules, err := gates.NewRuleEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:      opts,
		evaluator: gates.NewEvaluator(rules, opts.Waivers, opts.Auditor),
	}, nil
}

// RunResult is the complete output of one validation run.
type RunResult struct {
	Reports       []report.ProtocolReport
	Artifacts     *report.Artifacts
	Declared      *graph.Graph
	Observed      *graph.Graph
	Corroboration *graph.CorroborationReport
}

// Run validates the given protocols (all catalog protocols when ids is
// empty). Per-protocol validation fans out to the worker pool; results are
// merged deterministically. Cancellation discards partial results — the
// aggregate contract is complete-or-nothing.
func (e *Engine) Run(ctx context.Context, ids []string) (*RunResult, error) {
	if len(ids) == 0 {
		ids = e.opts.Catalog.ProtocolIDs()
	}
	for _, id := range ids {
		if _, ok := e.opts.Catalog.Protocol(id); !ok {
			return nil, fmt.Errorf("unknown protocol %q", id)
		}
	}

	declared := graph.FromCatalog(e.opts.Catalog)
	observed := graph.FromSnapshot(e.opts.Snapshot, e.opts.Catalog)
	corr := graph.Corroborate(declared, observed)

	for _, f := range corr.Findings() {
		if f.Severity == graph.SeverityCritical {
			_ = e.opts.Auditor.Record(audit.EventGraph, "critical_cycle", f.Cycle.Key(), map[string]any{
				"flag": f.Flag,
			})
		}
	}

	reports := make([]report.ProtocolReport, len(ids))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < e.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue // drain; results are discarded anyway
				}
				reports[idx] = e.validateProtocol(ids[idx], corr)
			}
		}()
	}

feed:
	for i := range ids {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	return &RunResult{
		Reports:       reports,
		Artifacts:     report.Aggregate(reports, declared, observed, corr),
		Declared:      declared,
		Observed:      observed,
		Corroboration: corr,
	}, nil
}

// validateProtocol runs gate evaluation and rubric scoring for one
// protocol. Pure computation over already-loaded data; no timeouts apply.
func (e *Engine) validateProtocol(id string, corr *graph.CorroborationReport) report.ProtocolReport {
	p, _ := e.opts.Catalog.Protocol(id)
	events := e.opts.Snapshot.EventsFor(id)

	evaluation := e.evaluator.Evaluate(p, events)
	if corr.BlocksProtocol(id) {
		evaluation.MarkBlocked("protocol participates in a critical handoff cycle")
		_ = e.opts.Auditor.Record(audit.EventGraph, "protocol_blocked", id, nil)
	}

	result := report.ProtocolReport{
		ProtocolID: id,
		Evaluation: evaluation,
	}

	if r, ok := e.opts.Rubrics[id]; ok {
		result.Compliance = rubric.Score(r)
	} else if reason, bad := e.opts.RubricErrors[id]; bad {
		result.Incomplete = true
		result.IncompleteReason = "rubric failed to load: " + reason
	} else {
		result.Incomplete = true
		result.IncompleteReason = "no rubric provided"
	}

	e.opts.Logger.Debug("protocol validated",
		"protocol", id,
		"gate_state", evaluation.State,
		"incomplete", result.Incomplete,
	)
	return result
}

// ExitCode maps one protocol report to the CLI contract:
// 0 = PASS, 1 = FAIL/WARNING (or any non-passed gate state), 2 = internal
// error / incomplete.
func ExitCode(r *report.ProtocolReport) int {
	if r.Incomplete || r.Evaluation == nil {
		return 2
	}
	gatesOK := r.Evaluation.State == gates.StatePassed || r.Evaluation.State == gates.StateWaived
	rubricOK := r.Compliance != nil && r.Compliance.Status == rubric.StatusPass
	if gatesOK && rubricOK {
		return 0
	}
	return 1
}

// WorstExitCode aggregates per-protocol codes for batch runs.
func WorstExitCode(reports []report.ProtocolReport) int {
	worst := 0
	for i := range reports {
		if code := ExitCode(&reports[i]); code > worst {
			worst = code
		}
	}
	return worst
}
