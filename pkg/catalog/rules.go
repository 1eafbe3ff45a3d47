package catalog

import (
	"errors"
	"fmt"
)

// RuleKind discriminates pass-rule variants.
type RuleKind string

const (
	RulePercentage RuleKind = "percentage"
	RuleBoolean    RuleKind = "boolean"
	RuleComposite  RuleKind = "composite"
	RuleExpr       RuleKind = "expr"
)

// Combinator joins composite sub-rules.
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// PassRule is a discriminated pass criterion for one gate.
//
// Exactly one variant is populated, selected by Kind:
//   - percentage: compare a supplied metric against Threshold (>=, or > when Strict)
//   - boolean:    every condition in AllOf must be true
//   - composite:  sub-rules combined with AND/OR, evaluated recursively
//   - expr:       a CEL expression over {metrics, conditions}
type PassRule struct {
	Kind RuleKind `yaml:"kind" json:"kind"`

	// percentage
	Metric    string  `yaml:"metric,omitempty" json:"metric,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Strict    bool    `yaml:"strict,omitempty" json:"strict,omitempty"`

	// boolean
	AllOf []string `yaml:"all_of,omitempty" json:"all_of,omitempty"`

	// composite
	Combinator Combinator `yaml:"combinator,omitempty" json:"combinator,omitempty"`
	Rules      []PassRule `yaml:"rules,omitempty" json:"rules,omitempty"`

	// expr
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Validate checks that the rule declares exactly one well-formed variant.
func (r *PassRule) Validate() error {
	switch r.Kind {
	case RulePercentage:
		if r.Metric == "" {
			return errors.New("percentage rule missing metric")
		}
	case RuleBoolean:
		if len(r.AllOf) == 0 {
			return errors.New("boolean rule requires at least one condition in all_of")
		}
	case RuleComposite:
		if r.Combinator != CombinatorAnd && r.Combinator != CombinatorOr {
			return fmt.Errorf("composite rule has invalid combinator %q", r.Combinator)
		}
		if len(r.Rules) == 0 {
			return errors.New("composite rule requires at least one sub-rule")
		}
		for i := range r.Rules {
			if err := r.Rules[i].Validate(); err != nil {
				return fmt.Errorf("sub-rule %d: %w", i+1, err)
			}
		}
	case RuleExpr:
		if r.Expression == "" {
			return errors.New("expr rule missing expression")
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}
