package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the append-only contract in SQLite. The schema has
// no UPDATE or DELETE path; the unique (protocol_id, gate_id) index is the
// structural duplicate guard.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite-backed ledger at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS gate_events (
		sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		protocol_id TEXT NOT NULL,
		gate_id TEXT NOT NULL,
		gate_name TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		evidence JSON NOT NULL DEFAULT '[]',
		metrics JSON NOT NULL DEFAULT '{}',
		conditions JSON NOT NULL DEFAULT '{}',
		content_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		UNIQUE (protocol_id, gate_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Append persists an event under the same contract as Store.Append.
// The insert and the monotonicity check run in one transaction, so a
// rejected append leaves the database unchanged.
func (s *SQLiteStore) Append(ctx context.Context, event Event) error {
	reject := func(err error) error {
		return &AppendError{
			ProtocolID: event.ProtocolID,
			GateID:     event.GateID,
			Timestamp:  event.Timestamp,
			Err:        err,
		}
	}

	if err := event.validate(); err != nil {
		return reject(err)
	}

	// Timestamps are stored as RFC 3339 UTC text so the hash chain survives
	// a database round-trip bit-for-bit, and MAX() ordering stays correct.
	event.Timestamp = event.Timestamp.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM gate_events WHERE protocol_id = ?`,
		event.ProtocolID,
	).Scan(&latest)
	if err != nil {
		return fmt.Errorf("query latest timestamp: %w", err)
	}
	if latest.Valid {
		latestTS, perr := time.Parse(time.RFC3339Nano, latest.String)
		if perr != nil {
			return fmt.Errorf("corrupt stored timestamp %q: %w", latest.String, perr)
		}
		if event.Timestamp.Before(latestTS) {
			return reject(fmt.Errorf("%w: latest stored timestamp for %s is %s",
				ErrOutOfOrderTimestamp, event.ProtocolID, latestTS.Format(time.RFC3339Nano)))
		}
	}

	var dup int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM gate_events WHERE protocol_id = ? AND gate_id = ?`,
		event.ProtocolID, event.GateID,
	).Scan(&dup)
	if err != nil {
		return fmt.Errorf("query duplicate: %w", err)
	}
	if dup > 0 {
		return reject(fmt.Errorf("%w: gate %s already fired", ErrDuplicateEvent, event.Key()))
	}

	var seq uint64
	var prevHash string
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0), COALESCE((SELECT content_hash FROM gate_events ORDER BY sequence DESC LIMIT 1), 'genesis') FROM gate_events`,
	).Scan(&seq, &prevHash)
	if err != nil {
		return fmt.Errorf("query head: %w", err)
	}

	contentHash, err := chainHash(seq+1, event, prevHash)
	if err != nil {
		return reject(err)
	}

	evidence, _ := json.Marshal(event.Evidence)
	metrics, _ := json.Marshal(event.Values.Metrics)
	conditions, _ := json.Marshal(event.Values.Conditions)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gate_events
			(protocol_id, gate_id, gate_name, timestamp, evidence, metrics, conditions, content_hash, prev_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ProtocolID, event.GateID, event.GateName,
		event.Timestamp.Format(time.RFC3339Nano),
		string(evidence), string(metrics), string(conditions), contentHash, prevHash,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit()
}

// Snapshot loads the persisted ledger into an immutable in-memory view.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, protocol_id, gate_id, gate_name, timestamp,
		       evidence, metrics, conditions, content_hash, prev_hash
		FROM gate_events ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := &Snapshot{headHash: "genesis"}
	for rows.Next() {
		var (
			entry      Entry
			ts         string
			evidence   string
			metrics    string
			conditions string
		)
		if err := rows.Scan(
			&entry.Sequence, &entry.Event.ProtocolID, &entry.Event.GateID,
			&entry.Event.GateName, &ts,
			&evidence, &metrics, &conditions,
			&entry.ContentHash, &entry.PrevHash,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entry.Event.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", entry.Event.Key(), err)
		}
		if err := json.Unmarshal([]byte(evidence), &entry.Event.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence for %s: %w", entry.Event.Key(), err)
		}
		if err := json.Unmarshal([]byte(metrics), &entry.Event.Values.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", entry.Event.Key(), err)
		}
		if err := json.Unmarshal([]byte(conditions), &entry.Event.Values.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for %s: %w", entry.Event.Key(), err)
		}
		snap.entries = append(snap.entries, entry)
		snap.headHash = entry.ContentHash
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
