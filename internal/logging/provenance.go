package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema
const turnSchema = `
CREATE TABLE IF NOT EXISTS turn_log (
	turn_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	version_id   TEXT,
	record_json  TEXT,
	decision     TEXT NOT NULL,
	reason       TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_log_session ON turn_log(session_id);
`

// MigrateTurns creates the turn_log table if missing.
func MigrateTurns(db *sql.DB) error {
	if _, err := db.Exec(turnSchema); err != nil {
		return fmt.Errorf("migrate turn_log: %w", err)
	}
	return nil
}

// #endregion schema

// #region log-turn
// LogTurn writes a turn entry to the turn_log table.
func LogTurn(db *sql.DB, entry TurnEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO turn_log (turn_id, session_id, version_id, record_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TurnID,
		entry.SessionID,
		nullIfEmpty(entry.VersionID),
		nullIfEmpty(entry.RecordJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log turn: %w", err)
	}
	return nil
}

// LogRecord marshals rec and writes it with the given decision.
func LogRecord(db *sql.DB, versionID, decision, reason string, rec TurnRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal turn record: %w", err)
	}
	return LogTurn(db, TurnEntry{
		TurnID:     rec.TurnID,
		SessionID:  rec.SessionID,
		VersionID:  versionID,
		RecordJSON: string(raw),
		Decision:   decision,
		Reason:     reason,
	})
}

// #endregion log-turn

// #region load-turns
// LoadTurns returns the recorded turns of a session, oldest first. Rows without a record are skipped.
func LoadTurns(ctx context.Context, db *sql.DB, sessionID string) ([]TurnRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT record_json FROM turn_log WHERE session_id = ? ORDER BY rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if !raw.Valid {
			continue
		}
		var rec TurnRecord
		if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion load-turns

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
