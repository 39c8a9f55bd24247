package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/arbiter/internal/audit"
)

// #region audit-schema
const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id     TEXT PRIMARY KEY,
	entry_type   TEXT NOT NULL,
	severity     TEXT NOT NULL,
	actor        TEXT,
	details_json TEXT,
	delta_json   TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_type ON audit_log(entry_type);
`

// #endregion audit-schema

// #region audit-sink
// AuditSink persists audit entries to the audit_log table. It is meant to be subscribed to an
// audit.Log so the in-memory ring can evict without losing history.
type AuditSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditSink migrates audit_log on db. A nil logger is replaced with a no-op one.
func NewAuditSink(db *sql.DB, logger *zap.Logger) (*AuditSink, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("migrate audit_log: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{db: db, logger: logger.Named("audit-sink")}, nil
}

// Write inserts a single entry.
func (s *AuditSink) Write(e audit.Entry) error {
	details, err := marshalIfSet(e.Details, len(e.Details) > 0)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	delta, err := marshalIfSet(e.Delta, e.Delta != nil)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err = s.db.Exec(
		`INSERT INTO audit_log (entry_id, entry_type, severity, actor, details_json, delta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		string(e.Type),
		string(e.Severity),
		nullIfEmpty(e.Actor),
		nullIfEmpty(details),
		nullIfEmpty(delta),
		e.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write audit entry %s: %w", e.ID, err)
	}
	return nil
}

// Subscriber adapts Write to audit.Subscriber. Failures are logged, never propagated to the writer.
func (s *AuditSink) Subscriber() audit.Subscriber {
	return func(e audit.Entry) {
		if err := s.Write(e); err != nil {
			s.logger.Warn("persist audit entry failed",
				zap.String("id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err),
			)
		}
	}
}

// Attach subscribes the sink to l.
func (s *AuditSink) Attach(l *audit.Log) *audit.Subscription {
	return l.Subscribe(s.Subscriber())
}

// #endregion audit-sink

// #region recent
// Recent returns up to limit persisted entries of the given type (all types if empty), oldest first.
func (s *AuditSink) Recent(ctx context.Context, entryType audit.Type, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, entry_type, severity, actor, details_json, delta_json, created_at FROM (
			SELECT rowid AS rid, * FROM audit_log WHERE (? = '' OR entry_type = ?) ORDER BY rowid DESC LIMIT ?
		 ) ORDER BY rid ASC`,
		string(entryType), string(entryType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit_log: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var typ, sev, created string
		var actor, details, delta sql.NullString
		if err := rows.Scan(&e.ID, &typ, &sev, &actor, &details, &delta, &created); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Type = audit.Type(typ)
		e.Severity = audit.Severity(sev)
		e.Actor = actor.String
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		if delta.Valid {
			e.Delta = &audit.Delta{}
			if err := json.Unmarshal([]byte(delta.String), e.Delta); err != nil {
				return nil, fmt.Errorf("unmarshal delta: %w", err)
			}
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent

func marshalIfSet(v any, set bool) (string, error) {
	if !set {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
