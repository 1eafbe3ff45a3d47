// Package ledger — Append-Only Gate Event Ledger.
//
// The ledger is the observed source of truth for governance validation:
//   - One event per (protocol, gate) per run, appended exactly once
//   - Per-protocol monotonic non-decreasing timestamps
//   - Entries are hash-chained to their predecessor; no update or delete
//     operation exists in the public contract
//
// Analyzers read a Snapshot taken at run start; a run never observes a
// ledger that grows mid-replay.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for append rejection. Rejected appends leave the store
// unchanged and do not abort the rest of the ledger load.
var (
	ErrOutOfOrderTimestamp = errors.New("out-of-order timestamp")
	ErrDuplicateEvent      = errors.New("duplicate event")
)

// HandoffPrefix marks an evidence reference as an explicit cross-reference
// to a downstream protocol or sink. Observed graph edges are recorded only
// for these references, never inferred from time adjacency.
const HandoffPrefix = "handoff:"

// Observations carries the metric values and condition booleans the external
// evidence collaborator computed for a gate. The engine only combines these;
// it never re-implements prose analysis.
type Observations struct {
	Metrics    map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Conditions map[string]bool    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Event is a single gate-pass record. Created once by an external
// evidence-producing collaborator; immutable after append.
type Event struct {
	Timestamp  time.Time    `json:"timestamp" yaml:"timestamp"`
	ProtocolID string       `json:"protocol_id" yaml:"protocol_id"`
	GateID     string       `json:"gate_id" yaml:"gate_id"`
	GateName   string       `json:"gate_name" yaml:"gate_name"`
	Evidence   []string     `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Values     Observations `json:"values,omitempty" yaml:"values,omitempty"`
}

// Key identifies an event within a run.
func (e *Event) Key() string {
	return e.ProtocolID + "/" + e.GateID
}

// Handoffs returns the protocol/sink targets this event's evidence
// explicitly cross-references.
func (e *Event) Handoffs() []string {
	var targets []string
	for _, ref := range e.Evidence {
		if t, ok := strings.CutPrefix(ref, HandoffPrefix); ok && t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}

func (e *Event) validate() error {
	if e.ProtocolID == "" {
		return fmt.Errorf("event missing protocol_id")
	}
	if e.GateID == "" {
		return fmt.Errorf("event %s missing gate_id", e.ProtocolID)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event %s has zero timestamp", e.Key())
	}
	return nil
}

// AppendError reports a rejected append with the offending identity intact.
type AppendError struct {
	ProtocolID string
	GateID     string
	Timestamp  time.Time
	Err        error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append rejected for %s/%s at %s: %v",
		e.ProtocolID, e.GateID, e.Timestamp.Format(time.RFC3339Nano), e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// Redactor rewrites sensitive evidence reference content before append.
// Event identity (protocol_id, gate_id, timestamp) is never touched.
type Redactor interface {
	Redact(ref string) string
}

// RedactorFunc adapts a function to the Redactor interface.
type RedactorFunc func(ref string) string

func (f RedactorFunc) Redact(ref string) string { return f(ref) }
