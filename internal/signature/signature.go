package signature

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// #region fields
// Field names one line of the ∆DΩΛ block.
type Field string

const (
	Delta  Field = "delta"
	Depth  Field = "depth"
	Omega  Field = "omega"
	Lambda Field = "lambda"
)

// All lists the fields in block order.
var All = []Field{Delta, Depth, Omega, Lambda}

// Header is the first line of a built block.
const Header = "∆DΩΛ"

// Fields holds the content of each line, empty when absent.
type Fields struct {
	Delta  string `json:"delta"`
	Depth  string `json:"depth"`
	Omega  string `json:"omega"`
	Lambda string `json:"lambda"`
}

// Get returns the content of f.
func (fs Fields) Get(f Field) string {
	switch f {
	case Delta:
		return fs.Delta
	case Depth:
		return fs.Depth
	case Omega:
		return fs.Omega
	case Lambda:
		return fs.Lambda
	}
	return ""
}

func (fs *Fields) set(f Field, v string) {
	switch f {
	case Delta:
		fs.Delta = v
	case Depth:
		fs.Depth = v
	case Omega:
		fs.Omega = v
	case Lambda:
		fs.Lambda = v
	}
}

// #endregion fields

// #region markers
// A field line: optional quote/emphasis/bullet prefix, a label, optional emphasis, a separator, content.
// Dashes only separate when preceded by whitespace so words like "next-gen" stay body text.
const linePrefix = `^[ \t>*_]*(?:[•·][ \t]*)?`
const lineSuffix = `[*_]*(?:[ \t]*[:：]|[ \t]+[\-—–])[*_]*[ \t]*(.*?)[ \t]*$`

// Labels match case-insensitively, so δ also covers Δ and ω covers Ω and the ohm sign.
// Symbol labels always belong to a block; word labels only when their content is well formed.
var (
	symbolLabels = map[Field]string{
		Delta:  `(?:∆|δ)`,
		Depth:  `d`,
		Omega:  `ω`,
		Lambda: `λ`,
	}
	wordLabels = map[Field]string{
		Delta:  `delta`,
		Depth:  `(?:depth|sift)`,
		Omega:  `(?:omega|confidence)`,
		Lambda: `(?:lambda|next[ \t]+(?:step|action)|next)`,
	}
)

func compileLabels(labels map[Field]string) map[Field]*regexp.Regexp {
	out := make(map[Field]*regexp.Regexp, len(labels))
	for f, l := range labels {
		out[f] = regexp.MustCompile(`(?i)` + linePrefix + l + lineSuffix)
	}
	return out
}

var (
	symbolLines = compileLabels(symbolLabels)
	wordLines   = compileLabels(wordLabels)
	headerLine  = regexp.MustCompile(`(?i)^[ \t>*_#]*[∆δ][ \t]*d[ \t]*ω[ \t]*λ[ \t*_:]*$`)
	numberRe    = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	levelRe     = regexp.MustCompile(`(?i)\b(low|medium|high)\b`)
)

// levelValues maps confidence words to a representative value.
var levelValues = map[string]float64{
	"low":    0.3,
	"medium": 0.6,
	"high":   0.9,
}

// #endregion markers

// #region parse
// Normalize applies NFC so visually identical symbols compare equal.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// lineField reports which field a line carries, if any, and whether it used a symbol label.
func lineField(line string) (Field, string, bool, bool) {
	for _, f := range All {
		if m := symbolLines[f].FindStringSubmatch(line); m != nil {
			return f, m[1], true, true
		}
		if m := wordLines[f].FindStringSubmatch(line); m != nil {
			return f, m[1], false, true
		}
	}
	return "", "", false, false
}

func splitLines(text string) []string {
	lines := strings.Split(Normalize(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

// blockStart returns the index of the first line of the trailing block, len(lines) when there
// is none. A block is the last header followed only by field lines and blanks, or without a
// header the final run of field lines. Lines above it are body and are never parsed.
func blockStart(lines []string) int {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	for i := end - 1; i >= 0; i-- {
		if headerLine.MatchString(lines[i]) {
			return i
		}
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if _, _, _, ok := lineField(lines[i]); !ok {
			break
		}
	}

	start := end
	for start > 0 {
		f, content, symbolic, ok := lineField(lines[start-1])
		if !ok || (!symbolic && !wellFormed(f, content)) {
			break
		}
		start--
	}
	return start
}

// Parse extracts the last occurrence of each field from the trailing block of text.
func Parse(text string) Fields {
	fs, _ := parse(text)
	return fs
}

func parse(text string) (Fields, map[Field]bool) {
	var fs Fields
	present := make(map[Field]bool, len(All))
	lines := splitLines(text)
	for _, line := range lines[blockStart(lines):] {
		if f, content, _, ok := lineField(line); ok {
			fs.set(f, content)
			present[f] = true
		}
	}
	return fs, present
}

// ParseOmega reads a stated confidence. Numbers in [0,1] win over level words;
// a percentage above 1 is scaled down.
func ParseOmega(s string) (float64, bool) {
	for _, raw := range numberRe.FindAllString(s, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			continue
		}
		if v >= 0 && v <= 1 {
			return v, true
		}
		if v > 1 && v <= 100 && strings.Contains(s, raw+"%") {
			return v / 100, true
		}
	}
	if m := levelRe.FindStringSubmatch(s); m != nil {
		return levelValues[strings.ToLower(m[1])], true
	}
	return 0, false
}

func wellFormed(f Field, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	if f == Omega {
		_, ok := ParseOmega(content)
		return ok
	}
	return true
}

// #endregion parse

// #region validate
// Report is the outcome of Validate.
type Report struct {
	Fields    Fields  `json:"fields"`
	Missing   []Field `json:"missing,omitempty"`
	Malformed []Field `json:"malformed,omitempty"`
}

// Valid reports whether all four fields are present and well formed.
func (r Report) Valid() bool {
	return len(r.Missing) == 0 && len(r.Malformed) == 0
}

// Problems returns missing and malformed fields in block order.
func (r Report) Problems() []Field {
	bad := make(map[Field]bool)
	for _, f := range r.Missing {
		bad[f] = true
	}
	for _, f := range r.Malformed {
		bad[f] = true
	}
	var out []Field
	for _, f := range All {
		if bad[f] {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks text for a complete signature.
func Validate(text string) Report {
	fs, present := parse(text)
	r := Report{Fields: fs}
	for _, f := range All {
		switch {
		case !present[f]:
			r.Missing = append(r.Missing, f)
		case !wellFormed(f, fs.Get(f)):
			r.Malformed = append(r.Malformed, f)
		}
	}
	return r
}

// #endregion validate

// #region strip-build
// Strip removes the trailing block, returning the naked message. Body lines that merely look
// like fields are kept.
func Strip(text string) string {
	lines := splitLines(text)
	body := lines[:blockStart(lines)]
	return strings.TrimRight(strings.Join(body, "\n"), " \t\r\n")
}

// Build formats a block from fs. Empty fields are emitted as empty lines of their label.
func Build(fs Fields) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n∆: ")
	b.WriteString(oneLine(fs.Delta))
	b.WriteString("\nD: ")
	b.WriteString(oneLine(fs.Depth))
	b.WriteString("\nΩ: ")
	b.WriteString(oneLine(fs.Omega))
	b.WriteString("\nΛ: ")
	b.WriteString(oneLine(fs.Lambda))
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// #endregion strip-build
