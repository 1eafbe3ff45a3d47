package rubric

import (
	"math"
	"sort"
)

// Status is the banded compliance outcome.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusWarning Status = "WARNING"
	StatusFail    Status = "FAIL"
)

// ComplianceResult is the scored outcome for one protocol document.
type ComplianceResult struct {
	ProtocolID      string             `json:"protocol_id"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	OverallScore    float64            `json:"overall_score"`
	Status          Status             `json:"status"`
	FloorViolations []string           `json:"floor_violations,omitempty"`
}

// Score computes the weighted compliance result. Every check always runs —
// there is no short-circuiting — so the report stays complete even when
// early checks fail. The overall score is rounded to 3 decimal places.
func Score(r *Rubric) *ComplianceResult {
	result := &ComplianceResult{
		ProtocolID:      r.ProtocolID,
		DimensionScores: make(map[string]float64, len(r.Dimensions)),
	}

	overall := 0.0
	for _, d := range r.Dimensions {
		passed := 0
		for _, c := range d.Checks {
			if c.Passed {
				passed++
			}
		}
		score := float64(passed) / float64(len(d.Checks))
		result.DimensionScores[d.Name] = round3(score)
		overall += d.Weight * score

		if d.Floor > 0 && score < d.Floor {
			result.FloorViolations = append(result.FloorViolations, d.Name)
		}
	}
	sort.Strings(result.FloorViolations)
	result.OverallScore = round3(overall)

	switch {
	case result.OverallScore >= r.PassThreshold && len(result.FloorViolations) == 0:
		result.Status = StatusPass
	case result.OverallScore >= r.WarningFloor:
		result.Status = StatusWarning
	default:
		result.Status = StatusFail
	}
	return result
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
