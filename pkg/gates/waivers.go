package gates

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Waiver is a recorded human override converting a failed or skipped gate
// to Waived. A waiver is never applied silently: the justification is
// mandatory and every application is audit-logged.
type Waiver struct {
	ProtocolID    string `yaml:"protocol_id" json:"protocol_id"`
	GateID        string `yaml:"gate_id" json:"gate_id"`
	Justification string `yaml:"justification" json:"justification"`
	Approver      string `yaml:"approver" json:"approver"`
}

// LoadWaivers reads a YAML waiver document. A waiver missing its
// justification or approver is rejected at load time.
func LoadWaivers(path string) ([]Waiver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read waivers %s: %w", path, err)
	}

	var doc struct {
		Waivers []Waiver `yaml:"waivers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse waivers: %w", err)
	}

	for i, w := range doc.Waivers {
		if w.ProtocolID == "" || w.GateID == "" {
			return nil, fmt.Errorf("waiver %d: missing protocol_id or gate_id", i+1)
		}
		if w.Justification == "" {
			return nil, fmt.Errorf("waiver %d (%s/%s): justification is required", i+1, w.ProtocolID, w.GateID)
		}
		if w.Approver == "" {
			return nil, fmt.Errorf("waiver %d (%s/%s): approver is required", i+1, w.ProtocolID, w.GateID)
		}
	}
	return doc.Waivers, nil
}
