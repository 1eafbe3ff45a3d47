// Package report — Report Aggregator.
//
// A pure reduction over per-protocol results into three artifacts: the
// compliance matrix, the integration map and the cycle report. Aggregation
// is associative and order-independent across protocols; rows are sorted by
// protocol id before serializing so repeated runs on identical inputs
// produce byte-identical artifacts.
package report

import (
	"sort"

	"github.com/paragon-ops/govalid/pkg/gates"
	"github.com/paragon-ops/govalid/pkg/graph"
	"github.com/paragon-ops/govalid/pkg/rubric"
)

// ProtocolReport is the combined per-protocol input to aggregation.
// A protocol that could not be evaluated is marked incomplete rather than
// omitted — no silent partial success.
type ProtocolReport struct {
	ProtocolID       string                   `json:"protocol_id"`
	Evaluation       *gates.Evaluation        `json:"evaluation,omitempty"`
	Compliance       *rubric.ComplianceResult `json:"compliance,omitempty"`
	Incomplete       bool                     `json:"incomplete,omitempty"`
	IncompleteReason string                   `json:"incomplete_reason,omitempty"`
}

// MatrixRow is one compliance-matrix line.
type MatrixRow struct {
	ProtocolID   string        `json:"protocol_id"`
	GateState    gates.State   `json:"gate_state"`
	OverallScore float64       `json:"overall_score"`
	Status       rubric.Status `json:"status"`
	Incomplete   bool          `json:"incomplete,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// IntegrationRow is one integration-map line.
type IntegrationRow struct {
	ProtocolID    string `json:"protocol_id"`
	DeclaredEdges int    `json:"declared_edges"`
	ObservedEdges int    `json:"observed_edges"`
	// Corroborated is true when every observed outbound edge is also
	// declared in the catalog.
	Corroborated bool `json:"corroborated"`
}

// CycleReport lists all corroborated cycle findings with severity.
type CycleReport struct {
	Findings []graph.Finding `json:"findings"`
}

// Artifacts is the complete aggregate output of a run.
type Artifacts struct {
	Matrix      []MatrixRow      `json:"compliance_matrix"`
	Integration []IntegrationRow `json:"integration_map"`
	Cycles      CycleReport      `json:"cycle_report"`
}

// Aggregate merges per-protocol reports with the graph analysis. Input
// order does not matter; output is canonically sorted.
func Aggregate(reports []ProtocolReport, declared, observed *graph.Graph, corr *graph.CorroborationReport) *Artifacts {
	sorted := make([]ProtocolReport, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProtocolID < sorted[j].ProtocolID
	})

	artifacts := &Artifacts{
		Matrix:      make([]MatrixRow, 0, len(sorted)),
		Integration: make([]IntegrationRow, 0, len(sorted)),
		Cycles:      CycleReport{Findings: corr.Findings()},
	}
	if artifacts.Cycles.Findings == nil {
		artifacts.Cycles.Findings = []graph.Finding{}
	}

	for _, r := range sorted {
		row := MatrixRow{
			ProtocolID: r.ProtocolID,
			Incomplete: r.Incomplete,
			Reason:     r.IncompleteReason,
		}
		if r.Evaluation != nil {
			row.GateState = r.Evaluation.State
			if row.Reason == "" {
				row.Reason = r.Evaluation.Reason
			}
		}
		if r.Compliance != nil {
			row.OverallScore = r.Compliance.OverallScore
			row.Status = r.Compliance.Status
		}
		artifacts.Matrix = append(artifacts.Matrix, row)

		artifacts.Integration = append(artifacts.Integration, IntegrationRow{
			ProtocolID:    r.ProtocolID,
			DeclaredEdges: declared.OutDegree(r.ProtocolID),
			ObservedEdges: observed.OutDegree(r.ProtocolID),
			Corroborated:  edgesCorroborated(r.ProtocolID, declared, observed),
		})
	}
	return artifacts
}

// edgesCorroborated reports whether every observed outbound edge of the
// protocol also appears in the declaration.
func edgesCorroborated(id string, declared, observed *graph.Graph) bool {
	for _, target := range observed.Nodes() {
		if observed.HasEdge(id, target) && !declared.HasEdge(id, target) {
			return false
		}
	}
	return true
}
