package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS session_versions (
	version_id       TEXT PRIMARY KEY,
	parent_id        TEXT,
	session_id       TEXT NOT NULL,
	metrics_json     TEXT NOT NULL,
	voice            TEXT,
	forced_voice     TEXT,
	phase            TEXT,
	turn             INTEGER NOT NULL,
	preferences_json TEXT,
	history_json     TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES session_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_session_versions_session ON session_versions(session_id);

CREATE TABLE IF NOT EXISTS active_session (
	session_id    TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES session_versions(version_id)
);
`

const selectVersion = `SELECT version_id, parent_id, session_id, metrics_json, voice, forced_voice, phase,
	turn, preferences_json, history_json, created_at FROM session_versions`

// #endregion schema

// #region store-struct
// Store manages versioned sessions in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ SessionStore = (*Store)(nil)

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single connection: SQLite has one writer and the pragmas below are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region load
// Load reads the active version of a session.
func (s *Store) Load(ctx context.Context, id string) (Session, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_session WHERE session_id = ?`, id,
	).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get active: %w", err)
	}
	return s.version(ctx, versionID)
}

// Version retrieves a specific version by ID.
func (s *Store) version(ctx context.Context, versionID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, selectVersion+` WHERE version_id = ?`, versionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get version %s: %w", versionID, err)
	}
	return sess, nil
}

// #endregion load

// #region save
// Save inserts a new version parented on the active one and moves the pointer atomically.
func (s *Store) Save(ctx context.Context, sess Session) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT version_id FROM active_session WHERE session_id = ?`, sess.ID,
	).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get active: %w", err)
	}

	sess.VersionID = uuid.New().String()
	sess.ParentID = parent.String
	sess.CreatedAt = s.now()

	metricsJSON, err := json.Marshal(sess.Metrics)
	if err != nil {
		return Session{}, fmt.Errorf("marshal metrics: %w", err)
	}
	prefsJSON, err := marshalOptional(sess.Preferences, len(sess.Preferences) == 0)
	if err != nil {
		return Session{}, fmt.Errorf("marshal preferences: %w", err)
	}
	historyJSON, err := marshalOptional(sess.History, len(sess.History) == 0)
	if err != nil {
		return Session{}, fmt.Errorf("marshal history: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_versions (version_id, parent_id, session_id, metrics_json, voice, forced_voice,
		 phase, turn, preferences_json, history_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.VersionID, nullIfEmpty(sess.ParentID), sess.ID, string(metricsJSON),
		nullIfEmpty(string(sess.Voice)), nullIfEmpty(string(sess.ForcedVoice)),
		nullIfEmpty(string(sess.Phase)), sess.Turn,
		prefsJSON, historyJSON, sess.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_session (session_id, version_id) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET version_id = excluded.version_id`,
		sess.ID, sess.VersionID,
	)
	if err != nil {
		return Session{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

// #endregion save

// #region rollback
// Rollback sets the active pointer to an earlier version of the same session.
func (s *Store) Rollback(ctx context.Context, id, versionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_versions WHERE version_id = ? AND session_id = ?`, versionID, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s of session %s: %w", versionID, id, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE active_session SET version_id = ? WHERE session_id = ?`, versionID, id)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region history
// History returns the most recent versions of a session, newest first.
func (s *Store) History(ctx context.Context, id string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectVersion+` WHERE session_id = ? ORDER BY rowid DESC LIMIT ?`, id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// List returns every session with an active pointer.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM active_session ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// #endregion history

// #region encoding
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var parentID, voiceID, forcedID, phaseName, prefsJSON, historyJSON sql.NullString
	var metricsJSON, createdStr string

	if err := row.Scan(&sess.VersionID, &parentID, &sess.ID, &metricsJSON, &voiceID, &forcedID, &phaseName,
		&sess.Turn, &prefsJSON, &historyJSON, &createdStr); err != nil {
		return Session{}, err
	}
	sess.ParentID = parentID.String
	sess.Voice = voice.ID(voiceID.String)
	sess.ForcedVoice = voice.ID(forcedID.String)
	sess.Phase = phase.Phase(phaseName.String)
	if err := json.Unmarshal([]byte(metricsJSON), &sess.Metrics); err != nil {
		return Session{}, fmt.Errorf("unmarshal metrics: %w", err)
	}
	if prefsJSON.Valid {
		if err := json.Unmarshal([]byte(prefsJSON.String), &sess.Preferences); err != nil {
			return Session{}, fmt.Errorf("unmarshal preferences: %w", err)
		}
	}
	if historyJSON.Valid {
		if err := json.Unmarshal([]byte(historyJSON.String), &sess.History); err != nil {
			return Session{}, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return sess, nil
}

func marshalOptional(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion encoding
