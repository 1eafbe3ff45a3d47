package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// Entry is an immutable, hash-chained ledger record.
type Entry struct {
	Sequence    uint64 `json:"sequence"`
	Event       Event  `json:"event"`
	ContentHash string `json:"content_hash"`
	PrevHash    string `json:"prev_hash"`
}

// Store is the in-memory append-only ledger. Append is the only write path
// and is mutex-serialized (single-writer); immutability is structural, not
// merely policy.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	latest   map[string]time.Time // protocol_id -> latest appended timestamp
	seen     map[string]bool      // protocol_id/gate_id
	headHash string
	redactor Redactor
}

// NewStore creates an empty ledger.
func NewStore() *Store {
	return &Store{
		latest:   make(map[string]time.Time),
		seen:     make(map[string]bool),
		headHash: "genesis",
	}
}

// WithRedactor installs a redaction policy applied to evidence references
// before append.
func (s *Store) WithRedactor(r Redactor) *Store {
	s.redactor = r
	return s
}

// Append adds an event to the ledger. It rejects events whose timestamp
// precedes the latest stored timestamp for the same protocol, and events
// whose (protocol_id, gate_id) already fired. A rejected append leaves the
// store unchanged.
func (s *Store) Append(event Event) error {
	if err := event.validate(); err != nil {
		return &AppendError{
			ProtocolID: event.ProtocolID,
			GateID:     event.GateID,
			Timestamp:  event.Timestamp,
			Err:        err,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if latest, ok := s.latest[event.ProtocolID]; ok && event.Timestamp.Before(latest) {
		return &AppendError{
			ProtocolID: event.ProtocolID,
			GateID:     event.GateID,
			Timestamp:  event.Timestamp,
			Err: fmt.Errorf("%w: latest stored timestamp for %s is %s",
				ErrOutOfOrderTimestamp, event.ProtocolID, latest.Format(time.RFC3339Nano)),
		}
	}
	if s.seen[event.Key()] {
		return &AppendError{
			ProtocolID: event.ProtocolID,
			GateID:     event.GateID,
			Timestamp:  event.Timestamp,
			Err:        fmt.Errorf("%w: gate %s already fired", ErrDuplicateEvent, event.Key()),
		}
	}

	if s.redactor != nil && len(event.Evidence) > 0 {
		redacted := make([]string, len(event.Evidence))
		for i, ref := range event.Evidence {
			redacted[i] = s.redactor.Redact(ref)
		}
		event.Evidence = redacted
	}

	seq := uint64(len(s.entries)) + 1
	contentHash, err := chainHash(seq, event, s.headHash)
	if err != nil {
		return &AppendError{
			ProtocolID: event.ProtocolID,
			GateID:     event.GateID,
			Timestamp:  event.Timestamp,
			Err:        err,
		}
	}

	s.entries = append(s.entries, Entry{
		Sequence:    seq,
		Event:       event,
		ContentHash: contentHash,
		PrevHash:    s.headHash,
	})
	s.headHash = contentHash
	s.latest[event.ProtocolID] = event.Timestamp
	s.seen[event.Key()] = true
	return nil
}

// chainHash computes the canonical (RFC 8785) content hash of an entry.
func chainHash(seq uint64, event Event, prevHash string) (string, error) {
	hashInput := struct {
		Seq   uint64 `json:"seq"`
		Event Event  `json:"event"`
		Prev  string `json:"prev"`
	}{seq, event, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Length returns the number of entries.
func (s *Store) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Head returns the current head hash.
func (s *Store) Head() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headHash
}

// Snapshot captures the ledger state at the start of a run. Analyzer
// workers replay the snapshot concurrently; later appends are invisible.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return &Snapshot{entries: entries, headHash: s.headHash}
}

// Snapshot is a closed, immutable view of the ledger.
type Snapshot struct {
	entries  []Entry
	headHash string
}

// Replay returns a restartable cursor over the snapshot in append order.
// Replaying an unmodified snapshot twice yields identical output.
func (s *Snapshot) Replay() *Cursor {
	return &Cursor{snapshot: s}
}

// Events returns all events in append order.
func (s *Snapshot) Events() []Event {
	events := make([]Event, len(s.entries))
	for i, e := range s.entries {
		events[i] = e.Event
	}
	return events
}

// EventsFor returns the events of one protocol in append order.
func (s *Snapshot) EventsFor(protocolID string) []Event {
	var events []Event
	for _, e := range s.entries {
		if e.Event.ProtocolID == protocolID {
			events = append(events, e.Event)
		}
	}
	return events
}

// Length returns the number of entries in the snapshot.
func (s *Snapshot) Length() int { return len(s.entries) }

// Head returns the snapshot's head hash.
func (s *Snapshot) Head() string { return s.headHash }

// Verify re-walks the hash chain and reports the first break, if any.
func (s *Snapshot) Verify() error {
	prevHash := "genesis"
	for i, entry := range s.entries {
		if entry.PrevHash != prevHash {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s",
				i+1, prevHash, entry.PrevHash)
		}
		computed, err := chainHash(entry.Sequence, entry.Event, entry.PrevHash)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
		if computed != entry.ContentHash {
			return fmt.Errorf("hash mismatch at entry %d (%s)", i+1, entry.Event.Key())
		}
		prevHash = entry.ContentHash
	}
	return nil
}

// Cursor iterates a snapshot lazily. Cursors are independent: multiple
// cursors over the same snapshot do not interfere.
type Cursor struct {
	snapshot *Snapshot
	pos      int
}

// Next returns the next entry, or false when the cursor is exhausted.
func (c *Cursor) Next() (Entry, bool) {
	if c.pos >= len(c.snapshot.entries) {
		return Entry{}, false
	}
	e := c.snapshot.entries[c.pos]
	c.pos++
	return e, true
}

// Reset restarts the cursor from the beginning.
func (c *Cursor) Reset() { c.pos = 0 }
