package ritual

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region name
// Name identifies a ritual.
type Name string

const (
	Phoenix Name = "phoenix"
	Shatter Name = "shatter"
	Council Name = "council"
	Watch   Name = "watch"
	Dream   Name = "dream"
	Mirror  Name = "mirror"
	Anchor  Name = "anchor"
)

// ErrUnknownRitual is returned by Invoke for names outside the closed set.
var ErrUnknownRitual = errors.New("unknown ritual")

// #endregion name

// #region ritual
// Ritual is a deterministic metrics transform plus its resulting phase and forced voice.
type Ritual struct {
	Name        Name
	Description string
	Phase       phase.Phase
	ForcedVoice voice.ID // empty = none
	Transform   func(metrics.Snapshot) metrics.Snapshot
}

var catalog = map[Name]Ritual{
	Phoenix: {
		Name:        Phoenix,
		Description: "full reset to the neutral baseline",
		Phase:       phase.Clarity,
		ForcedVoice: voice.Iskra,
		Transform:   func(metrics.Snapshot) metrics.Snapshot { return metrics.Neutral() },
	},
	Shatter: {
		Name:        Shatter,
		Description: "break false clarity",
		Phase:       phase.Dissolution,
		ForcedVoice: voice.Huyndun,
		Transform:   shatter,
	},
	Council: {
		Name:        Council,
		Description: "all voices deliberate",
		Phase:       phase.Transition,
		Transform:   func(m metrics.Snapshot) metrics.Snapshot { return m },
	},
	Watch: {
		Name:        Watch,
		Description: "observe without acting",
		Phase:       phase.Clarity,
		ForcedVoice: voice.Sam,
		Transform: func(m metrics.Snapshot) metrics.Snapshot {
			m.Clarity += 0.15
			m.Drift -= 0.1
			return m.Clamp()
		},
	},
	Dream: {
		Name:        Dream,
		Description: "loosen structure to let new associations form",
		Phase:       phase.Experiment,
		ForcedVoice: voice.Sibyl,
		Transform: func(m metrics.Snapshot) metrics.Snapshot {
			m.Clarity += 0.2
			m.Chaos -= 0.05
			return m.Clamp()
		},
	},
	Mirror: {
		Name:        Mirror,
		Description: "reflect the user back to restore attunement",
		Phase:       phase.Clarity,
		ForcedVoice: voice.Iskriv,
		Transform: func(m metrics.Snapshot) metrics.Snapshot {
			m.MirrorSync += 0.25
			m.Trust += 0.1
			return m.Clamp()
		},
	},
	Anchor: {
		Name:        Anchor,
		Description: "ground the conversation",
		Phase:       phase.Clarity,
		ForcedVoice: voice.Anhantra,
		Transform: func(m metrics.Snapshot) metrics.Snapshot {
			m.Drift -= 0.3
			m.Chaos -= 0.25
			m.Trust += 0.15
			return m.Clamp()
		},
	},
}

// shatter lowers clarity, raises chaos and pain within fixed bounds, and zeroes drift.
func shatter(m metrics.Snapshot) metrics.Snapshot {
	out := m
	out.Clarity = max(m.Clarity-0.3, 0.3)
	out.Chaos = min(m.Chaos+0.2, 0.7)
	out.Pain = min(m.Pain+0.1, 0.8)
	out.Drift = 0
	return out
}

// Get returns the named ritual.
func Get(name Name) (Ritual, error) {
	r, ok := catalog[name]
	if !ok {
		return Ritual{}, fmt.Errorf("%w: %q", ErrUnknownRitual, name)
	}
	return r, nil
}

// Names lists every ritual, auto-triggered ones first.
func Names() []Name {
	return []Name{Phoenix, Shatter, Council, Watch, Dream, Mirror, Anchor}
}

// #endregion ritual
