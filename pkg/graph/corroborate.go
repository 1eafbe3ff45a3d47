package graph

// Severity classifies a corroborated cycle finding.
type Severity string

const (
	// SeverityAdvisory marks documentation drift: the declared handoff
	// would cycle if ever exercised, but no evidence shows it has.
	SeverityAdvisory Severity = "advisory"
	// SeverityCritical marks a governance blocker: a real execution trace
	// shows disallowed revisitation. Never auto-remediated.
	SeverityCritical Severity = "critical"
)

// Finding is one cycle with its corroboration classification.
type Finding struct {
	Cycle    CyclePath `json:"cycle"`
	Flag     string    `json:"flag"` // "latent", "undeclared" or "corroborated"
	Severity Severity  `json:"severity"`
}

// CorroborationReport diffs the cycle sets of the declared and observed
// graphs. Latent cycles exist only in the declaration; undeclared cycles
// exist only in the execution trace and block the affected protocols;
// corroborated cycles appear in both and block equally, since the trace
// proves the declared cycle was exercised.
type CorroborationReport struct {
	Latent       []Finding `json:"latent,omitempty"`
	Undeclared   []Finding `json:"undeclared,omitempty"`
	Corroborated []Finding `json:"corroborated,omitempty"`
}

// Corroborate cross-checks the cycles of the two independently derived
// graphs. Edges are never removed to "fix" a cycle; resolution is a manual
// governance action.
func Corroborate(declared, observed *Graph) *CorroborationReport {
	declaredCycles := DetectCycles(declared)
	observedCycles := DetectCycles(observed)

	observedKeys := make(map[string]bool, len(observedCycles))
	for _, c := range observedCycles {
		observedKeys[c.Key()] = true
	}
	declaredKeys := make(map[string]bool, len(declaredCycles))
	for _, c := range declaredCycles {
		declaredKeys[c.Key()] = true
	}

	report := &CorroborationReport{}
	for _, c := range declaredCycles {
		if !observedKeys[c.Key()] {
			report.Latent = append(report.Latent, Finding{
				Cycle:    c,
				Flag:     "latent",
				Severity: SeverityAdvisory,
			})
		}
	}
	for _, c := range observedCycles {
		if declaredKeys[c.Key()] {
			report.Corroborated = append(report.Corroborated, Finding{
				Cycle:    c,
				Flag:     "corroborated",
				Severity: SeverityCritical,
			})
		} else {
			report.Undeclared = append(report.Undeclared, Finding{
				Cycle:    c,
				Flag:     "undeclared",
				Severity: SeverityCritical,
			})
		}
	}
	return report
}

// Findings returns all findings, latent first, in deterministic order.
func (r *CorroborationReport) Findings() []Finding {
	all := make([]Finding, 0, len(r.Latent)+len(r.Undeclared)+len(r.Corroborated))
	all = append(all, r.Latent...)
	all = append(all, r.Undeclared...)
	all = append(all, r.Corroborated...)
	return all
}

// BlocksProtocol reports whether a critical cycle passes through the
// protocol. Blocked protocols are cleared only by graph remediation, not by
// re-running evaluation.
func (r *CorroborationReport) BlocksProtocol(id string) bool {
	for _, f := range r.Undeclared {
		if f.Cycle.Contains(id) {
			return true
		}
	}
	for _, f := range r.Corroborated {
		if f.Cycle.Contains(id) {
			return true
		}
	}
	return false
}
