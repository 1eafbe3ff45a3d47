package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paragon-ops/govalid/pkg/audit"
)

// LoadReport summarizes a ledger file ingest. Bad records are skipped and
// reported, not fatal; the rest of the ledger stays usable.
type LoadReport struct {
	Total    int            `json:"total"`
	Appended int            `json:"appended"`
	Skipped  []SkippedEvent `json:"skipped,omitempty"`
}

// SkippedEvent records one rejected append during ingest.
type SkippedEvent struct {
	ProtocolID string `json:"protocol_id"`
	GateID     string `json:"gate_id"`
	Reason     string `json:"reason"`
}

// LoadFile ingests a closed JSONL ledger snapshot into the store.
// Each line is one Event. Rejected events (out-of-order timestamps,
// duplicates) are logged through the audit logger and skipped.
func LoadFile(path string, store *Store, auditor audit.Logger) (*LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	return LoadReader(f, store, auditor)
}

// LoadReader ingests a JSONL event stream into the store.
func LoadReader(r io.Reader, store *Store, auditor audit.Logger) (*LoadReport, error) {
	if auditor == nil {
		auditor = audit.Nop()
	}

	dec := json.NewDecoder(r)
	report := &LoadReport{}

	for dec.More() {
		var event Event
		if err := dec.Decode(&event); err != nil {
			return nil, fmt.Errorf("decode ledger event %d: %w", report.Total+1, err)
		}
		report.Total++

		if err := store.Append(event); err != nil {
			reason := classifyAppendError(err)
			report.Skipped = append(report.Skipped, SkippedEvent{
				ProtocolID: event.ProtocolID,
				GateID:     event.GateID,
				Reason:     reason,
			})
			_ = auditor.Record(audit.EventLedger, "append_rejected", event.Key(), map[string]any{
				"reason":    reason,
				"timestamp": event.Timestamp,
				"error":     err.Error(),
			})
			continue
		}
		report.Appended++
	}

	return report, nil
}

func classifyAppendError(err error) string {
	switch {
	case errors.Is(err, ErrOutOfOrderTimestamp):
		return "OUT_OF_ORDER_TIMESTAMP"
	case errors.Is(err, ErrDuplicateEvent):
		return "DUPLICATE_EVENT"
	default:
		return "INVALID_EVENT"
	}
}
