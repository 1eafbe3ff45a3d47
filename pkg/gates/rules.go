// Package gates — Gate Evaluator.
//
// A per-protocol state machine consumes ledger replay and catalog gate
// definitions to decide PASS/FAIL per gate and an overall protocol status.
// Gates are evaluated strictly in declared order; skip-ahead is a failure
// of the evaluator itself (GATE_SKIP), distinct from a gate's own rule
// failing.
package gates

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/paragon-ops/govalid/pkg/catalog"
	"github.com/paragon-ops/govalid/pkg/ledger"
)

// RuleEvaluator evaluates declared pass rules against the observation set
// an event carries. Expression rules compile to CEL programs, cached per
// expression with a hard cost limit.
type RuleEvaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewRuleEvaluator creates an evaluator with the standard environment:
// metrics (string → double) and conditions (string → bool).
func NewRuleEvaluator() (*RuleEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("conditions", cel.MapType(cel.StringType, cel.BoolType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &RuleEvaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Evaluate returns whether the observations satisfy the rule.
// Missing metrics and conditions evaluate to false, never to an error:
// absent evidence is a failed check, not a crash.
func (e *RuleEvaluator) Evaluate(rule *catalog.PassRule, obs ledger.Observations) (bool, error) {
	switch rule.Kind {
	case catalog.RulePercentage:
		value, ok := obs.Metrics[rule.Metric]
		if !ok {
			return false, nil
		}
		if rule.Strict {
			return value > rule.Threshold, nil
		}
		return value >= rule.Threshold, nil

	case catalog.RuleBoolean:
		for _, cond := range rule.AllOf {
			if !obs.Conditions[cond] {
				return false, nil
			}
		}
		return true, nil

	case catalog.RuleComposite:
		return e.evaluateComposite(rule, obs)

	case catalog.RuleExpr:
		return e.evaluateExpr(rule.Expression, obs)

	default:
		return false, fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

func (e *RuleEvaluator) evaluateComposite(rule *catalog.PassRule, obs ledger.Observations) (bool, error) {
	// All sub-rules always run so findings stay complete even when an
	// early sub-rule already decides the outcome.
	results := make([]bool, len(rule.Rules))
	for i := range rule.Rules {
		r, err := e.Evaluate(&rule.Rules[i], obs)
		if err != nil {
			return false, fmt.Errorf("sub-rule %d: %w", i+1, err)
		}
		results[i] = r
	}

	if rule.Combinator == catalog.CombinatorOr {
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	}
	for _, r := range results {
		if !r {
			return false, nil
		}
	}
	return true, nil
}

func (e *RuleEvaluator) evaluateExpr(expr string, obs ledger.Observations) (bool, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.cache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			e.cache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	metrics := obs.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	conditions := obs.Conditions
	if conditions == nil {
		conditions = map[string]bool{}
	}

	out, _, err := prg.Eval(map[string]any{
		"metrics":    metrics,
		"conditions": conditions,
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression result is not bool")
	}
	return result, nil
}
