// Package rubric — Compliance Rubric Scorer.
//
// A rubric is a weighted set of dimensions, each an ordered list of boolean
// checks computed by an external document-inspection collaborator. The
// scorer only combines the pre-computed booleans; it never parses prose.
package rubric

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default status banding. Rubric-configurable.
const (
	DefaultPassThreshold = 0.90
	DefaultWarningFloor  = 0.70

	// weightTolerance is the allowed deviation of the weight sum from 1.
	weightTolerance = 0.01
)

// Check is one boolean sub-check with its externally computed result.
type Check struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Passed bool   `yaml:"passed" json:"passed"`
}

// Dimension is one weighted scoring axis.
type Dimension struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
	Floor  float64 `yaml:"floor,omitempty" json:"floor,omitempty"`
	Checks []Check `yaml:"checks" json:"checks"`
}

// Rubric is a per-protocol declarative scoring document.
type Rubric struct {
	ProtocolID    string      `yaml:"protocol_id" json:"protocol_id"`
	PassThreshold float64     `yaml:"pass_threshold,omitempty" json:"pass_threshold,omitempty"`
	WarningFloor  float64     `yaml:"warning_floor,omitempty" json:"warning_floor,omitempty"`
	Dimensions    []Dimension `yaml:"dimensions" json:"dimensions"`
}

// LoadError is fatal for the affected rubric only; other protocols
// continue and the aggregate report marks this one incomplete.
type LoadError struct {
	Subject string
	Reason  string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rubric %s: %s", e.Subject, e.Reason)
}

// Load reads and validates one rubric YAML document. A mis-weighted rubric
// fails to load rather than silently normalizing.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric %s: %w", path, err)
	}

	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, &LoadError{Subject: path, Reason: err.Error()}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadDir loads every *.yaml rubric in a directory, keyed by protocol id.
// A bad rubric is returned in errs but does not stop the rest.
func LoadDir(dir string) (map[string]*Rubric, []error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, []error{err}
	}

	rubrics := make(map[string]*Rubric, len(matches))
	var errs []error
	for _, path := range matches {
		r, err := Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rubrics[r.ProtocolID] = r
	}
	return rubrics, errs
}

// Validate checks structural soundness and the weight-sum invariant.
func (r *Rubric) Validate() error {
	if r.ProtocolID == "" {
		return &LoadError{Subject: "rubric", Reason: "missing protocol_id"}
	}
	if len(r.Dimensions) == 0 {
		return &LoadError{Subject: r.ProtocolID, Reason: "rubric has no dimensions"}
	}

	sum := 0.0
	for _, d := range r.Dimensions {
		if d.Name == "" {
			return &LoadError{Subject: r.ProtocolID, Reason: "dimension with empty name"}
		}
		if d.Weight < 0 || d.Weight > 1 {
			return &LoadError{
				Subject: r.ProtocolID,
				Reason:  fmt.Sprintf("dimension %s weight %.3f outside [0,1]", d.Name, d.Weight),
			}
		}
		if len(d.Checks) == 0 {
			return &LoadError{
				Subject: r.ProtocolID,
				Reason:  fmt.Sprintf("dimension %s has no checks", d.Name),
			}
		}
		sum += d.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return &LoadError{
			Subject: r.ProtocolID,
			Reason:  fmt.Sprintf("dimension weights sum to %.3f, expected 1.0 ± %.2f", sum, weightTolerance),
		}
	}

	if r.PassThreshold == 0 {
		r.PassThreshold = DefaultPassThreshold
	}
	if r.WarningFloor == 0 {
		r.WarningFloor = DefaultWarningFloor
	}
	if r.WarningFloor > r.PassThreshold {
		return &LoadError{
			Subject: r.ProtocolID,
			Reason: fmt.Sprintf("warning_floor %.2f exceeds pass_threshold %.2f",
				r.WarningFloor, r.PassThreshold),
		}
	}
	return nil
}
