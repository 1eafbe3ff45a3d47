package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gowebpki/jcs"
)

// Artifact filenames are deterministic given protocol id and artifact kind.
const (
	MatrixFile      = "compliance_matrix.json"
	IntegrationFile = "integration_map.json"
	CycleFile       = "cycle_report.json"
)

// ResultFile returns the per-protocol artifact filename.
func ResultFile(protocolID string) string {
	return fmt.Sprintf("result_%s.json", protocolID)
}

// CanonicalJSON returns RFC 8785 canonical bytes for v, so identical inputs
// serialize to byte-identical artifacts regardless of worker ordering.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize artifact: %w", err)
	}
	return canonical, nil
}

// Writer persists artifacts under a single output directory.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// WriteArtifacts writes the three aggregate artifacts.
func (w *Writer) WriteArtifacts(a *Artifacts) error {
	if err := w.writeJSON(MatrixFile, a.Matrix); err != nil {
		return err
	}
	if err := w.writeJSON(IntegrationFile, a.Integration); err != nil {
		return err
	}
	return w.writeJSON(CycleFile, a.Cycles)
}

// WriteProtocolResult writes one per-protocol result artifact.
func (w *Writer) WriteProtocolResult(r *ProtocolReport) error {
	return w.writeJSON(ResultFile(r.ProtocolID), r)
}

func (w *Writer) writeJSON(name string, v any) error {
	data, err := CanonicalJSON(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
