package replay

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/orchestrator"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/ritual"
	"github.com/danielpatrickdp/arbiter/internal/state"
)

// #region types

// Config bundles the stage configs for a replay run. It must match the configuration the
// fixture was recorded under for the outputs to reproduce.
type Config struct {
	Arbiter       orchestrator.ArbiterConfig
	AlwaysEnforce bool
	HistoryLimit  int
}

// DefaultConfig mirrors orchestrator.DefaultConfig.
func DefaultConfig() Config {
	oc := orchestrator.DefaultConfig()
	return Config{
		Arbiter:       oc.Arbiter,
		AlwaysEnforce: oc.AlwaysEnforce,
		HistoryLimit:  oc.HistoryLimit,
	}
}

// Divergence is one expected field that came out differently.
type Divergence struct {
	Field    string
	Expected string
	Actual   string
}

// TurnResult captures the outcome of replaying one turn.
type TurnResult struct {
	Index       int
	Prompt      string
	Actual      Expect
	Overall     float64
	Enforced    bool
	Divergences []Divergence
}

// Report is the outcome of a whole fixture.
type Report struct {
	Name      string
	Turns     []TurnResult
	Divergent int // turns with at least one divergence
	Entries   int // audit entries written during the run
	Final     state.Session
}

// OK reports whether every turn reproduced.
func (r Report) OK() bool {
	return r.Divergent == 0
}

// #endregion types

// #region harness

// Harness replays fixtures through the arbitration stages with the recorded replies in
// place of generation. Nothing it compares depends on a generator or a store.
type Harness struct {
	config Config
	tables *patterns.Table
}

// NewHarness creates a harness. nil tables use patterns.Default().
func NewHarness(config Config, tables *patterns.Table) *Harness {
	return &Harness{config: config, tables: tables}
}

// Run replays f from its seed. Only an unknown invoked ritual or a seed the gate rejects
// stop the run with an error.
func (h *Harness) Run(f *Fixture) (Report, error) {
	log := audit.NewLog(audit.LogConfig{Capacity: max(1, 16*len(f.Turns))})
	cfg := h.config.Arbiter
	if len(f.Preferences) > 0 {
		cfg.Preferences = f.Preferences
	}
	arb := orchestrator.NewArbiter(cfg, h.tables, log)

	id := f.SessionID
	if id == "" {
		id = f.Name
	}
	sess := state.NewSession(id)
	if f.Seed != nil {
		sess.Metrics = *f.Seed
	}

	report := Report{Name: f.Name}
	appended := 0
	sub := log.Subscribe(func(audit.Entry) { appended++ })
	defer sub.Unsubscribe()

	for i, t := range f.Turns {
		plan, err := arb.Plan(sess, t.Prompt, ritual.Name(t.Ritual))
		if err != nil {
			return report, fmt.Errorf("turn %d: %w", i, err)
		}
		enforce := h.config.AlwaysEnforce || plan.Config.SignatureMandatory
		sig, res := arb.Respond(plan, t.Prompt, t.Response, enforce)

		actual := Expect{
			Voice:    string(plan.Voice),
			Playbook: string(plan.Playbook.Playbook),
			Phase:    string(plan.Phase),
			Ritual:   NoRitual,
			Grade:    string(res.Grade),
		}
		if plan.Ritual != nil {
			actual.Ritual = string(plan.Ritual.Ritual)
		}

		tr := TurnResult{
			Index:       i,
			Prompt:      t.Prompt,
			Actual:      actual,
			Overall:     res.Overall,
			Enforced:    sig.WasEnforced,
			Divergences: compare(t.Expect, actual),
		}
		if len(tr.Divergences) > 0 {
			report.Divergent++
		}
		report.Turns = append(report.Turns, tr)

		sess = arb.Advance(sess, plan, t.Prompt, sig.Text, h.config.HistoryLimit)
	}

	report.Entries = appended
	report.Final = sess
	return report, nil
}

func compare(want, got Expect) []Divergence {
	var out []Divergence
	check := func(field, w, g string) {
		if w != "" && !strings.EqualFold(w, g) {
			out = append(out, Divergence{Field: field, Expected: w, Actual: g})
		}
	}
	check("voice", want.Voice, got.Voice)
	check("playbook", want.Playbook, got.Playbook)
	check("phase", want.Phase, got.Phase)
	check("ritual", want.Ritual, got.Ritual)
	check("grade", want.Grade, got.Grade)
	return out
}

// #endregion harness

// #region summary

// String renders the report as plain text: one line per turn, divergences indented.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "replay %s: %d turns, %d divergent, %d audit entries\n", r.Name, len(r.Turns), r.Divergent, r.Entries)
	for _, t := range r.Turns {
		status := "ok"
		if len(t.Divergences) > 0 {
			status = "DIVERGED"
		}
		fmt.Fprintf(&b, "  #%d %-8s voice=%s playbook=%s phase=%s ritual=%s grade=%s (%.2f)\n",
			t.Index, status, t.Actual.Voice, t.Actual.Playbook, t.Actual.Phase, t.Actual.Ritual, t.Actual.Grade, t.Overall)
		for _, d := range t.Divergences {
			fmt.Fprintf(&b, "      %s: expected %s, got %s\n", d.Field, d.Expected, d.Actual)
		}
	}
	return b.String()
}

// #endregion summary
