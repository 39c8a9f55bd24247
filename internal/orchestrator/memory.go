package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danielpatrickdp/arbiter/internal/eval"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #endregion

// #region schema

const turnOutcomesSchema = `
CREATE TABLE IF NOT EXISTS turn_outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    turn_id       TEXT NOT NULL,
    session_id    TEXT NOT NULL,
    playbook      TEXT NOT NULL,
    voice         TEXT NOT NULL,
    strategy_id   TEXT NOT NULL,
    attempt_num   INTEGER NOT NULL,
    grade         TEXT NOT NULL,
    overall       REAL NOT NULL,
    flags         TEXT NOT NULL DEFAULT '',
    failure       TEXT NOT NULL DEFAULT 'none',
    accepted      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turn_outcomes_playbook
ON turn_outcomes(playbook, strategy_id);
`

// minSamples is the number of accepted outcomes a strategy needs before it is trusted.
const minSamples = 3

// halfLife weights older outcomes down. 7 days.
const halfLife = 7 * 24 * time.Hour

// #endregion

// #region memory-struct

// OutcomeMemory persists per-attempt outcomes in SQLite and queries decay-weighted results.
type OutcomeMemory struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutcomeMemory initializes the turn_outcomes table.
func NewOutcomeMemory(db *sql.DB) (*OutcomeMemory, error) {
	if _, err := db.Exec(turnOutcomesSchema); err != nil {
		return nil, fmt.Errorf("migrate turn_outcomes: %w", err)
	}
	return &OutcomeMemory{db: db, now: time.Now}, nil
}

// #endregion

// #region record-outcome

// RecordOutcome persists a single attempt row.
func (m *OutcomeMemory) RecordOutcome(rec OutcomeRecord) error {
	accepted := 0
	if rec.Accepted {
		accepted = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	failure := rec.Failure
	if failure == "" {
		failure = FailureNone
	}
	_, err := m.db.Exec(`
		INSERT INTO turn_outcomes
		(turn_id, session_id, playbook, voice, strategy_id, attempt_num,
		 grade, overall, flags, failure, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TurnID,
		rec.SessionID,
		string(rec.Playbook),
		string(rec.Voice),
		string(rec.StrategyID),
		rec.AttemptNum,
		string(rec.Grade),
		rec.Overall,
		joinFlags(rec.Flags),
		string(failure),
		accepted,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// #endregion

// #region best-strategy

// BestStrategy returns the accepted strategy with the highest decay-weighted overall
// score for the playbook. Returns ("", 0, nil) when no strategy has enough samples.
func (m *OutcomeMemory) BestStrategy(pb playbook.Playbook) (StrategyID, float64, error) {
	rows, err := m.db.Query(`
		SELECT strategy_id, overall, created_at
		FROM turn_outcomes
		WHERE playbook = ? AND accepted = 1`,
		string(pb),
	)
	if err != nil {
		return "", 0, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	type stratAccum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}

	now := m.now()
	accum := make(map[StrategyID]*stratAccum)

	for rows.Next() {
		var sid, createdAtStr string
		var overall float64
		if err := rows.Scan(&sid, &overall, &createdAtStr); err != nil {
			return "", 0, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / halfLife.Hours())

		a, ok := accum[StrategyID(sid)]
		if !ok {
			a = &stratAccum{}
			accum[StrategyID(sid)] = a
		}
		a.weightedSum += overall * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	var bestID StrategyID
	bestScore := -1.0
	for sid, a := range accum {
		if a.count < minSamples || a.totalWeight == 0 {
			continue
		}
		avg := a.weightedSum / a.totalWeight
		// ties resolve by name so the choice does not depend on map order
		if avg > bestScore || (avg == bestScore && sid < bestID) {
			bestScore = avg
			bestID = sid
		}
	}
	if bestID == "" {
		return "", 0, nil
	}
	return bestID, bestScore, nil
}

// #endregion

// #region recent

// Recent returns the newest outcome rows, newest first. limit <= 0 returns all.
func (m *OutcomeMemory) Recent(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT turn_id, session_id, playbook, voice, strategy_id, attempt_num,
		       grade, overall, flags, failure, accepted, created_at
		FROM turn_outcomes
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var pb, v, sid, grade, flags, failure, ts string
		var accepted int
		if err := rows.Scan(&rec.TurnID, &rec.SessionID, &pb, &v, &sid, &rec.AttemptNum,
			&grade, &rec.Overall, &flags, &failure, &accepted, &ts); err != nil {
			return nil, err
		}
		rec.Playbook = playbook.Playbook(pb)
		rec.Voice = voice.ID(v)
		rec.StrategyID = StrategyID(sid)
		rec.Grade = eval.Grade(grade)
		rec.Flags = splitFlags(flags)
		rec.Failure = FailureType(failure)
		rec.Accepted = accepted == 1
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion

// #region flags

func joinFlags(flags []eval.Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func splitFlags(s string) []eval.Flag {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]eval.Flag, len(parts))
	for i, p := range parts {
		out[i] = eval.Flag(p)
	}
	return out
}

// #endregion
