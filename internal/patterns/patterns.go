package patterns

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// #region group-names
const (
	Crisis         = "crisis"
	Deliberation   = "deliberation"
	Verification   = "verification"
	Distress       = "distress"
	Rapport        = "rapport"
	Interrupt      = "interrupt"
	Sycophancy     = "sycophancy"
	Hedging        = "hedging"
	Overconfidence = "overconfidence"
	Filler         = "filler"
	Collaborative  = "collaborative"
	Adversarial    = "adversarial"
	Citation       = "citation"
	Verified       = "verified"
	Deflection     = "deflection"
	Refusal        = "refusal"
)

// SupportedVersions is the table version range this build understands.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// ErrUnsupportedVersion is returned when a table's version falls outside SupportedVersions.
var ErrUnsupportedVersion = errors.New("unsupported pattern table version")

// #endregion group-names

// #region embedded
//go:embed tables.yaml
var defaultTables []byte

//go:embed schema.json
var tableSchema string

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded tables. It panics if the embedded file is invalid,
// which the package tests rule out.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(bytes.NewReader(defaultTables))
		if err != nil {
			panic(fmt.Sprintf("embedded pattern tables: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// #endregion embedded

// #region group
// Group is a named set of compiled patterns.
type Group struct {
	Name        string
	Description string
	sources     []string
	compiled    []*regexp.Regexp
}

// Hits returns how many distinct patterns in the group match text.
func (g *Group) Hits(text string) int {
	text = Normalize(text)
	n := 0
	for _, re := range g.compiled {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// Count returns the total number of non-overlapping matches across all patterns.
func (g *Group) Count(text string) int {
	text = Normalize(text)
	n := 0
	for _, re := range g.compiled {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

// Matches returns the source of every pattern that matches text.
func (g *Group) Matches(text string) []string {
	text = Normalize(text)
	var out []string
	for i, re := range g.compiled {
		if re.MatchString(text) {
			out = append(out, g.sources[i])
		}
	}
	return out
}

// Any reports whether any pattern matches text.
func (g *Group) Any(text string) bool {
	text = Normalize(text)
	for _, re := range g.compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns in the group.
func (g *Group) Len() int {
	return len(g.compiled)
}

// #endregion group

// #region table
// Table is a versioned collection of pattern groups.
type Table struct {
	Version *semver.Version
	groups  map[string]*Group
}

// Group returns the named group. A missing group is empty and never matches.
func (t *Table) Group(name string) *Group {
	if g, ok := t.groups[name]; ok {
		return g
	}
	return &Group{Name: name}
}

// Names returns every group name in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.groups))
	for n := range t.groups {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// #endregion table

// #region load
type rawTable struct {
	Version string              `yaml:"version"`
	Groups  map[string]rawGroup `yaml:"groups"`
}

type rawGroup struct {
	Description string   `yaml:"description"`
	Patterns    []string `yaml:"patterns"`
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://arbiter.local/schemas/patterns.schema.json"
		if err := c.AddResource(url, strings.NewReader(tableSchema)); err != nil {
			schemaErr = fmt.Errorf("load schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(url)
	})
	return compiledSchema, schemaErr
}

// Load parses, validates and compiles a YAML pattern table.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}

	if err := validate(data); err != nil {
		return nil, err
	}

	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}

	version, err := semver.NewVersion(raw.Version)
	if err != nil {
		return nil, fmt.Errorf("parse version %q: %w", raw.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, fmt.Errorf("parse constraint: %w", err)
	}
	if !constraint.Check(version) {
		return nil, fmt.Errorf("%w: %s (want %s)", ErrUnsupportedVersion, version, SupportedVersions)
	}

	t := &Table{Version: version, groups: make(map[string]*Group, len(raw.Groups))}
	for name, rg := range raw.Groups {
		g := &Group{Name: name, Description: rg.Description}
		for _, src := range rg.Patterns {
			re, err := regexp.Compile("(?i)" + Normalize(src))
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", name, src, err)
			}
			g.sources = append(g.sources, src)
			g.compiled = append(g.compiled, re)
		}
		t.groups[name] = g
	}
	return t, nil
}

// validate checks the document shape against the embedded JSON schema.
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse tables: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert tables: %w", err)
	}
	var inst any
	if err := json.Unmarshal(asJSON, &inst); err != nil {
		return fmt.Errorf("convert tables: %w", err)
	}
	sch, err := schema()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("validate tables: %w", err)
	}
	return nil
}

// #endregion load

// #region normalize
// Normalize returns text in Unicode NFC so composed and decomposed input match alike.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// #endregion normalize
