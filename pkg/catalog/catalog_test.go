package catalog

import (
	"errors"
	"testing"
)

const validCatalog = `
version: "1.0.0"
sinks: ["CI Backlog", "Ops Teams", "PMO Archive"]
protocols:
  - id: P01
    name: Proposal Drafting
    outputs_to: [P02, "PMO Archive"]
    gates:
      - id: G1
        name: Scope locked
        rule:
          kind: percentage
          metric: coverage
          threshold: 0.8
      - id: G2
        name: Signatures present
        rule:
          kind: boolean
          all_of: [signatures_present, budget_approved]
  - id: P02
    name: Discovery Call
    outputs_to: ["Ops Teams"]
    gates:
      - id: G1
        name: Call summary filed
        rule:
          kind: composite
          combinator: OR
          rules:
            - kind: percentage
              metric: completeness
              threshold: 0.9
            - kind: expr
              expression: 'conditions["manually_reviewed"]'
`

func TestLoadValidCatalog(t *testing.T) {
	c, err := Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Protocols) != 2 {
		t.Fatalf("expected 2 protocols, got %d", len(c.Protocols))
	}

	p, ok := c.Protocol("P01")
	if !ok {
		t.Fatal("expected P01 to resolve")
	}
	if len(p.Gates) != 2 {
		t.Fatalf("expected 2 gates, got %d", len(p.Gates))
	}
	if !c.IsSink("PMO Archive") {
		t.Fatal("expected PMO Archive to be a sink")
	}

	gate, idx, ok := p.Gate("G2")
	if !ok || idx != 1 {
		t.Fatalf("expected G2 at index 1, got idx=%d ok=%v", idx, ok)
	}
	if gate.Rule.Kind != RuleBoolean {
		t.Fatalf("expected boolean rule, got %s", gate.Rule.Kind)
	}
}

func TestLoadRejectsDuplicateProtocolID(t *testing.T) {
	doc := `
protocols:
  - id: P01
    name: A
    gates: [{id: G1, name: g, rule: {kind: boolean, all_of: [x]}}]
  - id: P01
    name: B
    gates: [{id: G1, name: g, rule: {kind: boolean, all_of: [x]}}]
`
	_, err := Parse([]byte(doc))
	var malformed *MalformedCatalogError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedCatalogError, got %v", err)
	}
	if malformed.Subject != "P01" {
		t.Fatalf("expected offending id P01, got %q", malformed.Subject)
	}
}

func TestLoadRejectsUnresolvedOutputTarget(t *testing.T) {
	doc := `
protocols:
  - id: P01
    name: A
    outputs_to: [P99]
    gates: [{id: G1, name: g, rule: {kind: boolean, all_of: [x]}}]
`
	_, err := Parse([]byte(doc))
	var malformed *MalformedCatalogError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedCatalogError, got %v", err)
	}
}

func TestLoadRejectsDuplicateGateID(t *testing.T) {
	doc := `
protocols:
  - id: P01
    name: A
    gates:
      - {id: G1, name: g, rule: {kind: boolean, all_of: [x]}}
      - {id: G1, name: h, rule: {kind: boolean, all_of: [y]}}
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected duplicate gate id to fail")
	}
}

func TestLoadRejectsBadSemver(t *testing.T) {
	doc := `
version: "not-a-version"
protocols:
  - id: P01
    name: A
    gates: [{id: G1, name: g, rule: {kind: boolean, all_of: [x]}}]
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected bad version to fail")
	}
}

func TestLoadRejectsMalformedRule(t *testing.T) {
	doc := `
protocols:
  - id: P01
    name: A
    gates: [{id: G1, name: g, rule: {kind: percentage}}]
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected percentage rule without metric to fail")
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	// protocols must be a non-empty array
	if _, err := Parse([]byte(`protocols: []`)); err == nil {
		t.Fatal("expected empty protocols to fail schema validation")
	}
}

func TestPassRuleValidate(t *testing.T) {
	cases := []struct {
		name string
		rule PassRule
		ok   bool
	}{
		{"percentage", PassRule{Kind: RulePercentage, Metric: "m", Threshold: 0.5}, true},
		{"percentage missing metric", PassRule{Kind: RulePercentage}, false},
		{"boolean", PassRule{Kind: RuleBoolean, AllOf: []string{"a"}}, true},
		{"boolean empty", PassRule{Kind: RuleBoolean}, false},
		{"expr", PassRule{Kind: RuleExpr, Expression: "true"}, true},
		{"unknown kind", PassRule{Kind: "magic"}, false},
		{"composite bad combinator", PassRule{
			Kind: RuleComposite, Combinator: "XOR",
			Rules: []PassRule{{Kind: RuleExpr, Expression: "true"}},
		}, false},
		{"composite nested invalid", PassRule{
			Kind: RuleComposite, Combinator: CombinatorAnd,
			Rules: []PassRule{{Kind: RulePercentage}},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
