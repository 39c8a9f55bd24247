package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/danielpatrickdp/arbiter/internal/logging"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// NoRitual is the expected ritual of a turn where none may fire.
const NoRitual = "none"

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	SessionID   string               `json:"session_id,omitempty"`
	Seed        *metrics.Snapshot    `json:"seed,omitempty"` // nil = metrics.Neutral()
	Preferences map[voice.ID]float64 `json:"preferences,omitempty"`
	Turns       []Turn               `json:"turns"`
}

// Turn is one recorded user message and the raw generator reply.
type Turn struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Ritual   string `json:"ritual,omitempty"` // invoke this ritual instead of the automatic check
	Expect   Expect `json:"expect"`
}

// Expect lists the arbitration outputs a turn must reproduce. Empty fields are not checked;
// Ritual "none" asserts that no ritual fired.
type Expect struct {
	Voice    string `json:"voice,omitempty"`
	Playbook string `json:"playbook,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Ritual   string `json:"ritual,omitempty"`
	Grade    string `json:"grade,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// SaveFixture writes f as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// Validate rejects fixtures that cannot be replayed.
func (f *Fixture) Validate() error {
	var errs []error
	if len(f.Turns) == 0 {
		errs = append(errs, errors.New("no turns"))
	}
	for i, t := range f.Turns {
		if t.Prompt == "" {
			errs = append(errs, fmt.Errorf("turn %d: empty prompt", i))
		}
		if t.Expect.Voice != "" {
			if _, err := voice.Parse(t.Expect.Voice); err != nil {
				errs = append(errs, fmt.Errorf("turn %d: %w", i, err))
			}
		}
	}
	if f.Seed != nil {
		if err := f.Seed.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("seed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// #endregion fixture-loader

// #region from-records

// FromRecords converts a session's turn_log records (oldest first) into a fixture that
// expects every recorded output.
func FromRecords(name string, recs []logging.TurnRecord) (*Fixture, error) {
	if len(recs) == 0 {
		return nil, errors.New("from records: no turns")
	}
	seed := recs[0].Before
	f := &Fixture{
		Name:      name,
		SessionID: recs[0].SessionID,
		Seed:      &seed,
		Turns:     make([]Turn, 0, len(recs)),
	}
	for _, r := range recs {
		t := Turn{
			Prompt:   r.Prompt,
			Response: r.Response,
			Expect: Expect{
				Voice:    r.Voice,
				Playbook: r.Playbook,
				Phase:    r.Phase,
				Ritual:   r.Ritual,
				Grade:    r.Grade,
			},
		}
		if t.Expect.Ritual == "" {
			t.Expect.Ritual = NoRitual
		}
		if r.Invoked {
			t.Ritual = r.Ritual
		}
		f.Turns = append(f.Turns, t)
	}
	return f, nil
}

// #endregion from-records
