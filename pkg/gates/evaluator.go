package gates

import (
	"fmt"

	"github.com/paragon-ops/govalid/pkg/audit"
	"github.com/paragon-ops/govalid/pkg/catalog"
	"github.com/paragon-ops/govalid/pkg/ledger"
)

// State is the overall protocol status for one run.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StatePassed     State = "PASSED"
	StateFailed     State = "FAILED"
	StateBlocked    State = "BLOCKED"
	StateWaived     State = "WAIVED"
)

// GateStatus is the per-gate outcome.
type GateStatus string

const (
	GatePassed       GateStatus = "PASSED"
	GateFailed       GateStatus = "FAILED"
	GateWaived       GateStatus = "WAIVED"
	GateNotEvaluated GateStatus = "NOT_EVALUATED"
)

// Reason codes for failures and blocks.
const (
	ReasonGateSkip        = "GATE_SKIP"
	ReasonRuleFailed      = "RULE_FAILED"
	ReasonRuleError       = "RULE_ERROR"
	ReasonUnknownGate     = "UNKNOWN_GATE"
	ReasonUndeclaredCycle = "UNDECLARED_CYCLE"
)

// GateResult is the outcome for one declared gate.
type GateResult struct {
	GateID     string     `json:"gate_id"`
	GateName   string     `json:"gate_name"`
	Status     GateStatus `json:"status"`
	ReasonCode string     `json:"reason_code,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// Evaluation is the full per-protocol result.
type Evaluation struct {
	ProtocolID string       `json:"protocol_id"`
	State      State        `json:"state"`
	ReasonCode string       `json:"reason_code,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Gates      []GateResult `json:"gates"`
}

// MarkBlocked overrides the evaluation after an undeclared cycle was found
// touching this protocol. Cleared only by graph remediation, not by
// re-running evaluation.
func (e *Evaluation) MarkBlocked(detail string) {
	e.State = StateBlocked
	e.ReasonCode = ReasonUndeclaredCycle
	e.Reason = detail
}

// Evaluator drives the per-protocol state machine.
type Evaluator struct {
	rules   *RuleEvaluator
	waivers map[string]Waiver // protocol_id/gate_id -> waiver
	auditor audit.Logger
}

// NewEvaluator creates an evaluator with the given waivers in effect.
func NewEvaluator(rules *RuleEvaluator, waivers []Waiver, auditor audit.Logger) *Evaluator {
	if auditor == nil {
		auditor = audit.Nop()
	}
	byKey := make(map[string]Waiver, len(waivers))
	for _, w := range waivers {
		byKey[w.ProtocolID+"/"+w.GateID] = w
	}
	return &Evaluator{rules: rules, waivers: byKey, auditor: auditor}
}

// Evaluate replays one protocol's events against its declared gates.
//
// Transitions:
//   - first event moves NotStarted to InProgress
//   - a passing non-final gate keeps InProgress
//   - the final gate passing yields Passed (Waived if any gate was waived)
//   - a failing rule yields Failed unless a recorded waiver covers the gate
//   - an event arriving out of declared order yields Failed with GATE_SKIP,
//     unless every skipped gate carries a waiver
func (ev *Evaluator) Evaluate(p *catalog.Protocol, events []ledger.Event) *Evaluation {
	result := &Evaluation{
		ProtocolID: p.ID,
		State:      StateNotStarted,
		Gates:      make([]GateResult, len(p.Gates)),
	}
	for i, g := range p.Gates {
		result.Gates[i] = GateResult{GateID: g.ID, GateName: g.Name, Status: GateNotEvaluated}
	}

	if len(events) == 0 {
		return result
	}

	result.State = StateInProgress
	next := 0 // index of the gate expected to fire next
	anyWaived := false

	fail := func(code, detail string) {
		result.State = StateFailed
		result.ReasonCode = code
		result.Reason = detail
	}

	for _, event := range events {
		gate, idx, ok := p.Gate(event.GateID)
		if !ok {
			fail(ReasonUnknownGate, fmt.Sprintf("event references unknown gate %s", event.GateID))
			return result
		}

		if idx > next {
			// Skip-ahead: allowed only if every skipped gate is waived.
			waivedThrough := true
			for i := next; i < idx; i++ {
				if !ev.waive(p, i, result) {
					waivedThrough = false
					break
				}
			}
			if !waivedThrough {
				result.Gates[idx].Status = GateFailed
				result.Gates[idx].ReasonCode = ReasonGateSkip
				result.Gates[idx].Detail = fmt.Sprintf("gate %s fired before gate %s", gate.ID, p.Gates[next].ID)
				fail(ReasonGateSkip, fmt.Sprintf("gate %s fired before gate %s completed", gate.ID, p.Gates[next].ID))
				return result
			}
			anyWaived = true
			next = idx
		} else if idx < next {
			// The ledger deduplicates (protocol, gate), so a lower index
			// means declaration order and ledger order disagree.
			fail(ReasonGateSkip, fmt.Sprintf("gate %s fired after later gates", gate.ID))
			return result
		}

		passed, err := ev.rules.Evaluate(&gate.Rule, event.Values)
		if err != nil {
			result.Gates[idx].Status = GateFailed
			result.Gates[idx].ReasonCode = ReasonRuleError
			result.Gates[idx].Detail = err.Error()
			fail(ReasonRuleError, fmt.Sprintf("gate %s rule error: %v", gate.ID, err))
			return result
		}

		if !passed {
			if ev.waive(p, idx, result) {
				anyWaived = true
				next = idx + 1
				continue
			}
			result.Gates[idx].Status = GateFailed
			result.Gates[idx].ReasonCode = ReasonRuleFailed
			fail(ReasonRuleFailed, fmt.Sprintf("gate %s pass rule evaluated false", gate.ID))
			return result
		}

		result.Gates[idx].Status = GatePassed
		next = idx + 1
	}

	if next == len(p.Gates) {
		if anyWaived {
			result.State = StateWaived
		} else {
			result.State = StatePassed
		}
	}
	return result
}

// waive marks gate i waived if a recorded waiver covers it.
func (ev *Evaluator) waive(p *catalog.Protocol, i int, result *Evaluation) bool {
	gate := p.Gates[i]
	w, ok := ev.waivers[p.ID+"/"+gate.ID]
	if !ok {
		return false
	}
	result.Gates[i].Status = GateWaived
	result.Gates[i].Detail = w.Justification
	_ = ev.auditor.Record(audit.EventWaiver, "waiver_applied", p.ID+"/"+gate.ID, map[string]any{
		"justification": w.Justification,
		"approver":      w.Approver,
	})
	return true
}
