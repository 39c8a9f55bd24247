package orchestrator

// #region constants

// DefaultMaxRetries allows 3 total attempts.
const DefaultMaxRetries = 2

// #endregion

// #region engine

// RetryEngine decides whether to retry and with which strategy.
type RetryEngine struct {
	selector   *StrategySelector
	maxRetries int
}

// NewRetryEngine creates a retry engine backed by the given selector. maxRetries < 0
// falls back to DefaultMaxRetries.
func NewRetryEngine(selector *StrategySelector, maxRetries int) *RetryEngine {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryEngine{selector: selector, maxRetries: maxRetries}
}

// #endregion

// #region should-retry

// ShouldRetry returns whether to retry and the next strategy to use.
// attempts contains all attempts so far (including the one just evaluated).
func (r *RetryEngine) ShouldRetry(attempts []Attempt) (bool, *StrategyConfig) {
	if len(attempts) == 0 {
		return false, nil
	}

	// Max retries reached
	if len(attempts) > r.maxRetries {
		return false, nil
	}

	latest := attempts[len(attempts)-1]
	if !latest.Retry {
		return false, nil
	}

	tried := make([]StrategyID, len(attempts))
	for i, a := range attempts {
		tried[i] = a.Strategy
	}

	next := r.selector.SelectRetry(latest.Failure, latest.Eval.Flags, tried)
	if next == nil {
		return false, nil
	}
	return true, next
}

// #endregion

// #region best-attempt

// BestAttempt returns the index of the attempt to accept: the first one that did not ask
// for a retry, otherwise the highest overall score. Earlier attempts win ties.
func BestAttempt(attempts []Attempt) int {
	best := 0
	for i, a := range attempts {
		if !a.Retry {
			return i
		}
		if a.Eval.Overall > attempts[best].Eval.Overall {
			best = i
		}
	}
	return best
}

// #endregion
