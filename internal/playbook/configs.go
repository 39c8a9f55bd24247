package playbook

import (
	"slices"
	"time"

	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region configs

// Configs holds the static configuration for every playbook.
var Configs = map[Playbook]Config{
	Routine: {
		Playbook:       Routine,
		RequiredVoices: []voice.ID{voice.Iskra},
		OptionalVoices: []voice.ID{voice.Pino, voice.Sam},
		Depth:          DepthNone,
		Budget:         5 * time.Second,
	},
	FactVerification: {
		Playbook:           FactVerification,
		RequiredVoices:     []voice.ID{voice.Sam, voice.Iskriv},
		OptionalVoices:     []voice.ID{voice.Iskra},
		Depth:              DepthDeep,
		Budget:             20 * time.Second,
		SignatureMandatory: true,
	},
	EmotionalSupport: {
		Playbook:           EmotionalSupport,
		RequiredVoices:     []voice.ID{voice.Anhantra},
		OptionalVoices:     []voice.ID{voice.Iskra, voice.Maki},
		Depth:              DepthLight,
		Budget:             10 * time.Second,
		SignatureMandatory: true,
	},
	Council: {
		Playbook:           Council,
		RequiredVoices:     []voice.ID{voice.Iskra, voice.Sam, voice.Kain},
		OptionalVoices:     []voice.ID{voice.Iskriv, voice.Sibyl, voice.Huyndun},
		Depth:              DepthStandard,
		PanelSize:          5,
		Budget:             30 * time.Second,
		SignatureMandatory: true,
	},
	Crisis: {
		Playbook:           Crisis,
		RequiredVoices:     []voice.ID{voice.Anhantra, voice.Iskra},
		Depth:              DepthStandard,
		Budget:             5 * time.Second,
		SignatureMandatory: true,
	},
}

// ConfigFor returns a copy of the configuration for p, falling back to Routine.
func ConfigFor(p Playbook) Config {
	c, ok := Configs[p]
	if !ok {
		c = Configs[Routine]
	}
	c.RequiredVoices = slices.Clone(c.RequiredVoices)
	c.OptionalVoices = slices.Clone(c.OptionalVoices)
	return c
}

// #endregion configs
