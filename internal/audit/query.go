package audit

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
)

// #region query
// Query returns entries for which the CEL expression evaluates to true.
// The expression sees a single variable, entry, with fields id, type, severity,
// severity_rank, actor, details and timestamp_unix.
//
//	entry.type == "evaluation_result" && entry.details.overall < 0.5
func (l *Log) Query(expr string) ([]Entry, error) {
	prg, err := l.program(expr)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range l.Entries() {
		input, err := celInput(e)
		if err != nil {
			return nil, err
		}
		val, _, err := prg.Eval(map[string]any{"entry": input})
		if err != nil {
			// missing keys in details are a non-match, not a failure
			continue
		}
		if b, ok := val.Value().(bool); ok && b {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *Log) program(expr string) (cel.Program, error) {
	l.prgMu.RLock()
	prg, ok := l.prgCache[expr]
	l.prgMu.RUnlock()
	if ok {
		return prg, nil
	}

	l.prgMu.Lock()
	defer l.prgMu.Unlock()
	if prg, ok := l.prgCache[expr]; ok {
		return prg, nil
	}
	if l.env == nil {
		env, err := cel.NewEnv(cel.Variable("entry", cel.MapType(cel.StringType, cel.DynType)))
		if err != nil {
			return nil, fmt.Errorf("create cel env: %w", err)
		}
		l.env = env
	}
	ast, issues := l.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile query: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("query must evaluate to bool, got %s", out)
	}
	prg, err := l.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build query program: %w", err)
	}
	l.prgCache[expr] = prg
	return prg, nil
}

// celInput flattens an entry into JSON-native values CEL can index.
func celInput(e Entry) (map[string]any, error) {
	details := map[string]any{}
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details: %w", err)
		}
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return map[string]any{
		"id":             e.ID,
		"type":           string(e.Type),
		"severity":       string(e.Severity),
		"severity_rank":  int64(e.Severity.Rank()),
		"actor":          e.Actor,
		"details":        details,
		"timestamp_unix": e.Timestamp.Unix(),
	}, nil
}

// #endregion query
