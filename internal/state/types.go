package state

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// ErrNotFound is returned for unknown sessions and versions.
var ErrNotFound = errors.New("not found")

// #region session
// Session is a versioned snapshot of one conversation's arbitration state.
type Session struct {
	ID          string               `json:"id"`
	VersionID   string               `json:"version_id"`
	ParentID    string               `json:"parent_id,omitempty"`
	Metrics     metrics.Snapshot     `json:"metrics"`
	Voice       voice.ID             `json:"voice,omitempty"`
	ForcedVoice voice.ID             `json:"forced_voice,omitempty"` // set by a ritual, consumed next turn
	Phase       phase.Phase          `json:"phase,omitempty"`
	Turn        int                  `json:"turn"`
	Preferences map[voice.ID]float64 `json:"preferences,omitempty"`
	History     []playbook.Message   `json:"history,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// NewSession returns turn zero of a session at the neutral baseline.
func NewSession(id string) Session {
	return Session{
		ID:      id,
		Metrics: metrics.Neutral(),
		Phase:   phase.Clarity,
	}
}

// Append adds a message to the history, keeping at most limit entries.
func (s *Session) Append(m playbook.Message, limit int) {
	s.History = append(s.History, m)
	if limit > 0 && len(s.History) > limit {
		s.History = append([]playbook.Message(nil), s.History[len(s.History)-limit:]...)
	}
}

// LastUser returns the most recent user message text, or "".
func (s Session) LastUser() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == playbook.RoleUser {
			return s.History[i].Text
		}
	}
	return ""
}

// #endregion session

// #region session-store
// SessionStore persists sessions as an append-only chain of versions with an active pointer.
type SessionStore interface {
	// Load returns the active version of a session, or ErrNotFound.
	Load(ctx context.Context, id string) (Session, error)
	// Save writes s as a new version parented on the active one and returns it.
	Save(ctx context.Context, s Session) (Session, error)
	// History returns up to limit versions, newest first.
	History(ctx context.Context, id string, limit int) ([]Session, error)
	// Rollback points the session at an earlier version.
	Rollback(ctx context.Context, id, versionID string) error
	// List returns every known session ID, sorted.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// #endregion session-store
