// Package catalog — Protocol Catalog Model.
//
// The catalog is the static source of truth for governance validation:
//   - Protocols with ordered quality gates and declared pass rules
//   - Declared outbound handoff edges (outputs_to)
//   - Terminal sink labels excluded from cycle analysis
//
// The catalog is loaded once per run and read-only thereafter.
package catalog

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Protocol is a named process stage with ordered gates and declared handoffs.
type Protocol struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Gates     []Gate   `yaml:"gates" json:"gates"`
	OutputsTo []string `yaml:"outputs_to,omitempty" json:"outputs_to,omitempty"`
}

// Gate is a named checkpoint within a protocol with a declared pass rule.
type Gate struct {
	ID   string   `yaml:"id" json:"id"`
	Name string   `yaml:"name" json:"name"`
	Rule PassRule `yaml:"rule" json:"rule"`
}

// Catalog is the validated set of protocols and sinks for one run.
type Catalog struct {
	Version   string     `yaml:"version" json:"version"`
	Sinks     []string   `yaml:"sinks,omitempty" json:"sinks,omitempty"`
	Protocols []Protocol `yaml:"protocols" json:"protocols"`

	byID    map[string]*Protocol
	sinkSet map[string]bool
}

// MalformedCatalogError is fatal: the run aborts before any evaluation.
// It always names the offending identifier and a remediation hint.
type MalformedCatalogError struct {
	Subject string
	Reason  string
	Hint    string
}

func (e *MalformedCatalogError) Error() string {
	return fmt.Sprintf("malformed catalog: %s: %s (hint: %s)", e.Subject, e.Reason, e.Hint)
}

// Load reads, parses and validates a catalog YAML document.
// Referential integrity is checked here, not deferred to graph analysis.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw catalog YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Version != "" {
		if _, err := semver.NewVersion(c.Version); err != nil {
			return &MalformedCatalogError{
				Subject: c.Version,
				Reason:  "catalog version is not valid semver",
				Hint:    "use MAJOR.MINOR.PATCH, e.g. \"1.0.0\"",
			}
		}
	}

	c.sinkSet = make(map[string]bool, len(c.Sinks))
	for _, s := range c.Sinks {
		c.sinkSet[s] = true
	}

	c.byID = make(map[string]*Protocol, len(c.Protocols))
	for i := range c.Protocols {
		p := &c.Protocols[i]
		if p.ID == "" {
			return &MalformedCatalogError{
				Subject: p.Name,
				Reason:  "protocol has empty id",
				Hint:    "assign a stable short code (e.g. P01)",
			}
		}
		if _, dup := c.byID[p.ID]; dup {
			return &MalformedCatalogError{
				Subject: p.ID,
				Reason:  "duplicate protocol id",
				Hint:    "protocol ids must be unique across the catalog",
			}
		}
		if c.sinkSet[p.ID] {
			return &MalformedCatalogError{
				Subject: p.ID,
				Reason:  "protocol id collides with a sink label",
				Hint:    "sinks are terminal labels, not protocols",
			}
		}
		c.byID[p.ID] = p

		gateIDs := make(map[string]bool, len(p.Gates))
		for gi := range p.Gates {
			g := &p.Gates[gi]
			if g.ID == "" {
				return &MalformedCatalogError{
					Subject: p.ID,
					Reason:  fmt.Sprintf("gate %d has empty id", gi+1),
					Hint:    "every gate needs an id unique within its protocol",
				}
			}
			if gateIDs[g.ID] {
				return &MalformedCatalogError{
					Subject: p.ID + "/" + g.ID,
					Reason:  "duplicate gate id",
					Hint:    "gate ids must be unique within their protocol",
				}
			}
			gateIDs[g.ID] = true

			if err := g.Rule.Validate(); err != nil {
				return &MalformedCatalogError{
					Subject: p.ID + "/" + g.ID,
					Reason:  err.Error(),
					Hint:    "declare exactly one of percentage, boolean, composite or expr",
				}
			}
		}
	}

	// Referential integrity: outputs_to targets must resolve.
	for _, p := range c.Protocols {
		for _, target := range p.OutputsTo {
			if _, ok := c.byID[target]; ok {
				continue
			}
			if c.sinkSet[target] {
				continue
			}
			return &MalformedCatalogError{
				Subject: p.ID,
				Reason:  fmt.Sprintf("outputs_to target %q is neither a protocol nor a declared sink", target),
				Hint:    "declare the target protocol, or list it under sinks",
			}
		}
	}

	return nil
}

// Protocol returns the protocol with the given id.
func (c *Catalog) Protocol(id string) (*Protocol, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// IsSink reports whether the label is a declared terminal sink.
func (c *Catalog) IsSink(label string) bool {
	return c.sinkSet[label]
}

// ProtocolIDs returns all protocol ids in declaration order.
func (c *Catalog) ProtocolIDs() []string {
	ids := make([]string, len(c.Protocols))
	for i, p := range c.Protocols {
		ids[i] = p.ID
	}
	return ids
}

// Gate returns the gate with the given id, along with its declared position.
func (p *Protocol) Gate(id string) (*Gate, int, bool) {
	for i := range p.Gates {
		if p.Gates[i].ID == id {
			return &p.Gates[i], i, true
		}
	}
	return nil, -1, false
}
