package signature

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// Fallback content for synthesized fields.
const (
	DefaultDepth  = "No external sources consulted; reasoning only."
	DefaultOmega  = "0.60 (medium)"
	DefaultLambda = "Ask a follow-up or state the next concrete step."
)

const topicRunes = 60

// Context carries what enforcement needs to synthesize a delta line.
type Context struct {
	Voice voice.ID
	Topic string // usually the user message
}

// Result is the outcome of Enforce.
type Result struct {
	Text        string  `json:"text"`
	WasEnforced bool    `json:"was_enforced"`
	Fields      Fields  `json:"fields"`
	Repaired    []Field `json:"repaired,omitempty"`
}

// Enforce guarantees text ends in a well-formed block. Valid input is returned unchanged.
func Enforce(text string, ctx Context) Result {
	report := Validate(text)
	if report.Valid() {
		return Result{Text: text, Fields: report.Fields}
	}

	fs := report.Fields
	repaired := report.Problems()
	for _, f := range repaired {
		fs.set(f, synthesize(f, ctx))
	}

	body := Strip(text)
	block := Build(fs)
	out := block
	if body != "" {
		out = body + "\n\n" + block
	}
	return Result{Text: out, WasEnforced: true, Fields: Parse(block), Repaired: repaired}
}

func synthesize(f Field, ctx Context) string {
	switch f {
	case Delta:
		return deltaLine(ctx)
	case Depth:
		return DefaultDepth
	case Omega:
		return DefaultOmega
	default:
		return DefaultLambda
	}
}

func deltaLine(ctx Context) string {
	id := ctx.Voice
	if _, ok := voice.Lookup(id); !ok {
		id = voice.Iskra
	}
	topic := oneLine(ctx.Topic)
	if topic == "" {
		topic = "the current message"
	}
	if r := []rune(topic); len(r) > topicRunes {
		topic = strings.TrimSpace(string(r[:topicRunes])) + "…"
	}
	return fmt.Sprintf("%s %s responded to: %s", voice.Symbol(id), id, topic)
}

// #region enforcer
// Enforcer is Enforce plus a delta_violation audit entry for every repair.
type Enforcer struct {
	rec audit.Recorder
}

// NewEnforcer creates an enforcer writing to rec. A nil rec records nothing.
func NewEnforcer(rec audit.Recorder) *Enforcer {
	return &Enforcer{rec: rec}
}

// Enforce runs Enforce and audits the repair.
func (e *Enforcer) Enforce(text string, ctx Context) Result {
	res := Enforce(text, ctx)
	if res.WasEnforced && e.rec != nil {
		report := Validate(text)
		e.rec.Append(audit.Entry{
			Type:  audit.DeltaViolation,
			Actor: "signature",
			Details: map[string]any{
				"voice":     string(ctx.Voice),
				"missing":   fieldNames(report.Missing),
				"malformed": fieldNames(report.Malformed),
			},
		})
	}
	return res
}

func fieldNames(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

// #endregion enforcer
