package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// #region report
// Report renders a plain-text summary of the entries matching f.
func (l *Log) Report(f Filter) string {
	entries := l.Find(Filter{Types: f.Types, MinSeverity: f.MinSeverity, Actor: f.Actor, Since: f.Since})

	byType := make(map[Type]int)
	bySeverity := make(map[Severity]int)
	for _, e := range entries {
		byType[e.Type]++
		bySeverity[e.Severity]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audit report: %d entries (capacity %d)\n", len(entries), l.Capacity())

	b.WriteString("\nBy type:\n")
	for _, t := range Types {
		if n := byType[t]; n > 0 {
			fmt.Fprintf(&b, "  %-18s %d\n", t, n)
		}
	}

	b.WriteString("\nBy severity:\n")
	for _, s := range []Severity{Critical, Warning, Info} {
		fmt.Fprintf(&b, "  %-18s %d\n", s, bySeverity[s])
	}

	recent := entries
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent:\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "  %s  %-8s %-18s %-12s %s\n",
				e.Timestamp.Format(time.RFC3339), e.Severity, e.Type, e.Actor, summarizeDetails(e.Details))
		}
	}
	return b.String()
}

func summarizeDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

// #endregion report
