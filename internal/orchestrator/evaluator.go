package orchestrator

// #region imports
import (
	"strings"

	"github.com/danielpatrickdp/arbiter/internal/eval"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
)

// #endregion

// #region assessment

// Assessment is the regenerate decision for one attempt.
type Assessment struct {
	Failure     FailureType
	ShouldRetry bool
}

// Assess combines textual failure detection with the evaluation of the enforced response.
// A response retries on any detected failure or a D/F grade.
func Assess(tables *patterns.Table, prompt, raw string, res eval.Result) Assessment {
	failure := DetectFailure(tables, prompt, raw)
	if failure == FailureNone && (res.Grade == eval.GradeD || res.Grade == eval.GradeF) {
		failure = FailureLowGrade
	}
	return Assessment{Failure: failure, ShouldRetry: failure != FailureNone}
}

// #endregion

// #region detect-failure

// DetectFailure inspects the raw generator output, before any signature repair.
func DetectFailure(tables *patterns.Table, prompt, response string) FailureType {
	if tables == nil {
		tables = patterns.Default()
	}
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return FailureEmpty
	}
	lower := strings.ToLower(trimmed)

	if hasRepetition(lower) {
		return FailureRepetition
	}

	// Refusal cascade: 2+ distinct boilerplate patterns
	if tables.Group(patterns.Refusal).Hits(lower) >= 2 {
		return FailureRefusal
	}

	// Deflection only counts when it dominates a short reply
	words := strings.Fields(trimmed)
	if tables.Group(patterns.Deflection).Any(lower) && len(words) < 30 {
		return FailureDeflection
	}

	p := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	if len(p) > 10 && len(words) < 20 && strings.Contains(strings.Join(strings.Fields(lower), " "), p) {
		return FailureEcho
	}

	return FailureNone
}

// #endregion

// #region repetition-check

func hasRepetition(lower string) bool {
	// Split into sentences, check for 3+ identical sentences
	sentences := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	if len(sentences) < 3 {
		return false
	}
	counts := make(map[string]int)
	for _, s := range sentences {
		trimmed := strings.TrimSpace(s)
		if len(trimmed) > 10 {
			counts[trimmed]++
		}
	}
	for _, c := range counts {
		if c >= 3 {
			return true
		}
	}
	return false
}

// #endregion
