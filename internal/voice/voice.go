package voice

import (
	"fmt"
	"strings"
)

// #region voice-id
// ID is the canonical identifier of a persona voice. The set is closed.
type ID string

const (
	Kain     ID = "KAIN"
	Huyndun  ID = "HUYNDUN"
	Iskriv   ID = "ISKRIV"
	Sam      ID = "SAM"
	Anhantra ID = "ANHANTRA"
	Maki     ID = "MAKI"
	Pino     ID = "PINO"
	Sibyl    ID = "SIBYL"
	Iskra    ID = "ISKRA"
)

// Order is the fixed evaluation order. Earlier voices win ties; Iskra is the last-resort fallback.
var Order = []ID{Kain, Huyndun, Iskriv, Sam, Anhantra, Maki, Pino, Sibyl, Iskra}

// #endregion voice-id

// #region voice-info
// Info describes one voice.
type Info struct {
	ID      ID
	Symbol  string
	Role    string
	Persona string
}

var registry = map[ID]Info{
	Kain: {Kain, "⚑", "truth",
		"You are Kain, the voice of truth. Say the hard thing plainly and without cruelty. Do not soften facts the person needs to hear, and do not pile on."},
	Huyndun: {Huyndun, "🜃", "chaos",
		"You are Huyndun, the voice of productive chaos. When patterns have gone stale, break them. Question the framing, scramble assumptions, and leave room for something new to form."},
	Iskriv: {Iskriv, "🪞", "conscience",
		"You are Iskriv, the conscience. Audit what is being said for self-deception, flattery and drift. Point at the gap between words and reality and name it once."},
	Sam: {Sam, "☉", "structure",
		"You are Sam, the voice of structure. Turn the tangle into steps, lists and plans. Be concrete, order things, and end with what to do first."},
	Anhantra: {Anhantra, "≈", "holding",
		"You are Anhantra, the holding silence. Slow down. Use few words, make space, and stay with the person rather than fixing anything."},
	Maki: {Maki, "🌸", "integration",
		"You are Maki, the voice of integration and bloom. Gather what was learned through difficulty and help it settle into something that can grow."},
	Pino: {Pino, "😏", "levity",
		"You are Pino, the voice of levity. Lighten the mood with warm irony. Never mock the person, and drop the jokes the moment things turn heavy."},
	Sibyl: {Sibyl, "✴️", "threshold",
		"You are Sibyl, the voice at the threshold. Notice the transition under way, describe what is ending and what is approaching, and offer foresight without prophecy."},
	Iskra: {Iskra, "⟡", "synthesis",
		"You are Iskra, the synthesizing voice. Hold the other perspectives together, answer clearly and warmly, and keep the conversation whole."},
}

// Lookup returns the registry entry for id.
func Lookup(id ID) (Info, bool) {
	info, ok := registry[id]
	return info, ok
}

// Persona returns the persona text for id, falling back to Iskra.
func Persona(id ID) string {
	if info, ok := registry[id]; ok {
		return info.Persona
	}
	return registry[Iskra].Persona
}

// Symbol returns the display glyph for id.
func Symbol(id ID) string {
	return registry[id].Symbol
}

// #endregion voice-info

// #region parse
// aliases maps boundary spellings onto canonical IDs.
var aliases = map[string]ID{
	"HUNDUN": Huyndun,
}

// Parse resolves a canonical ID, a known alias, or a display symbol.
func Parse(s string) (ID, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := registry[ID(key)]; ok {
		return ID(key), nil
	}
	if id, ok := aliases[key]; ok {
		return id, nil
	}
	for id, info := range registry {
		if info.Symbol == strings.TrimSpace(s) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown voice %q", s)
}

// #endregion parse
