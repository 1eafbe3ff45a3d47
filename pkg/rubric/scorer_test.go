package rubric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func checks(results ...bool) []Check {
	out := make([]Check, len(results))
	for i, passed := range results {
		out[i] = Check{ID: string(rune('a' + i)), Name: "check", Passed: passed}
	}
	return out
}

func TestScoreWeightedAverage(t *testing.T) {
	r := &Rubric{
		ProtocolID:    "P01",
		PassThreshold: DefaultPassThreshold,
		WarningFloor:  DefaultWarningFloor,
		Dimensions: []Dimension{
			{Name: "completeness", Weight: 0.5, Checks: checks(true, true)},
			{Name: "evidence", Weight: 0.3, Checks: checks(false)},
			{Name: "readability", Weight: 0.2, Checks: checks(true)},
		},
	}
	require.NoError(t, r.Validate())

	result := Score(r)
	require.InDelta(t, 0.7, result.OverallScore, 1e-9)
	require.Equal(t, StatusWarning, result.Status)
	require.Equal(t, 1.0, result.DimensionScores["completeness"])
	require.Equal(t, 0.0, result.DimensionScores["evidence"])
	require.Equal(t, 1.0, result.DimensionScores["readability"])
}

func TestScorePass(t *testing.T) {
	r := &Rubric{
		ProtocolID:    "P01",
		PassThreshold: DefaultPassThreshold,
		WarningFloor:  DefaultWarningFloor,
		Dimensions: []Dimension{
			{Name: "completeness", Weight: 0.6, Checks: checks(true, true, true)},
			{Name: "evidence", Weight: 0.4, Checks: checks(true, true)},
		},
	}
	result := Score(r)
	require.Equal(t, 1.0, result.OverallScore)
	require.Equal(t, StatusPass, result.Status)
}

func TestScoreFail(t *testing.T) {
	r := &Rubric{
		ProtocolID:    "P01",
		PassThreshold: DefaultPassThreshold,
		WarningFloor:  DefaultWarningFloor,
		Dimensions: []Dimension{
			{Name: "completeness", Weight: 1.0, Checks: checks(false, false, true)},
		},
	}
	result := Score(r)
	require.Equal(t, 0.333, result.OverallScore)
	require.Equal(t, StatusFail, result.Status)
}

func TestScoreFloorViolationDemotesPassToWarning(t *testing.T) {
	// Overall clears the pass threshold but one dimension falls below its
	// floor, so the status drops to WARNING.
	r := &Rubric{
		ProtocolID:    "P01",
		PassThreshold: DefaultPassThreshold,
		WarningFloor:  DefaultWarningFloor,
		Dimensions: []Dimension{
			{Name: "completeness", Weight: 0.9, Checks: checks(true, true)},
			{Name: "evidence", Weight: 0.1, Floor: 0.5, Checks: checks(false, false, true)},
		},
	}
	result := Score(r)
	require.GreaterOrEqual(t, result.OverallScore, r.PassThreshold)
	require.Equal(t, StatusWarning, result.Status)
	require.Equal(t, []string{"evidence"}, result.FloorViolations)
}

func TestScoreRoundsToThreeDecimals(t *testing.T) {
	r := &Rubric{
		ProtocolID:    "P01",
		PassThreshold: DefaultPassThreshold,
		WarningFloor:  DefaultWarningFloor,
		Dimensions: []Dimension{
			{Name: "a", Weight: 1.0, Checks: checks(true, false, false)},
		},
	}
	result := Score(r)
	require.Equal(t, 0.333, result.OverallScore)
	require.Equal(t, 0.333, result.DimensionScores["a"])
}

func TestScoreRunsEveryCheck(t *testing.T) {
	// A fully failing first dimension must not suppress scoring of later
	// dimensions.
	r := &Rubric{
		ProtocolID:    "P01",
		PassThreshold: DefaultPassThreshold,
		WarningFloor:  DefaultWarningFloor,
		Dimensions: []Dimension{
			{Name: "a", Weight: 0.5, Checks: checks(false, false)},
			{Name: "b", Weight: 0.5, Checks: checks(true, true)},
		},
	}
	result := Score(r)
	require.Len(t, result.DimensionScores, 2)
	require.Equal(t, 1.0, result.DimensionScores["b"])
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	r := &Rubric{
		ProtocolID: "P01",
		Dimensions: []Dimension{
			{Name: "a", Weight: 0.5, Checks: checks(true)},
			{Name: "b", Weight: 0.3, Checks: checks(true)},
		},
	}
	err := r.Validate()
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "P01", loadErr.Subject)
}

func TestValidateWeightSumTolerance(t *testing.T) {
	r := &Rubric{
		ProtocolID: "P01",
		Dimensions: []Dimension{
			{Name: "a", Weight: 0.333, Checks: checks(true)},
			{Name: "b", Weight: 0.333, Checks: checks(true)},
			{Name: "c", Weight: 0.333, Checks: checks(true)},
		},
	}
	require.NoError(t, r.Validate(), "0.999 is within the ±0.01 tolerance")
}

func TestValidateAppliesDefaultBands(t *testing.T) {
	r := &Rubric{
		ProtocolID: "P01",
		Dimensions: []Dimension{{Name: "a", Weight: 1.0, Checks: checks(true)}},
	}
	require.NoError(t, r.Validate())
	require.Equal(t, DefaultPassThreshold, r.PassThreshold)
	require.Equal(t, DefaultWarningFloor, r.WarningFloor)
}

func TestValidateRejectsEmptyDimension(t *testing.T) {
	r := &Rubric{
		ProtocolID: "P01",
		Dimensions: []Dimension{{Name: "a", Weight: 1.0}},
	}
	require.Error(t, r.Validate())
}

func TestLoadDirIsolatesBadRubrics(t *testing.T) {
	dir := t.TempDir()

	good := `
protocol_id: P01
dimensions:
  - name: completeness
    weight: 1.0
    checks:
      - {id: c1, name: sections present, passed: true}
`
	bad := `
protocol_id: P02
dimensions:
  - name: completeness
    weight: 0.4
    checks:
      - {id: c1, name: sections present, passed: true}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p01.yaml"), []byte(good), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p02.yaml"), []byte(bad), 0o644))

	rubrics, errs := LoadDir(dir)
	require.Len(t, rubrics, 1)
	require.Contains(t, rubrics, "P01")
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	require.Equal(t, "P02", loadErr.Subject)
}
