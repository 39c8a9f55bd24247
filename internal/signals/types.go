package signals

// #region config

// ProducerConfig holds tuning knobs for signal computation.
type ProducerConfig struct {
	ShortReplyWords   int     // fewer words than this counts as a brief reply
	RepeatOverlap     float64 // keyword overlap at or above this counts as repetition
	TopicShiftOverlap float64 // overlap below this, with enough keywords, counts as a topic switch
	TopicMinKeywords  int
}

// DefaultProducerConfig returns sensible defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		ShortReplyWords:   4,
		RepeatOverlap:     0.7,
		TopicShiftOverlap: 0.1,
		TopicMinKeywords:  3,
	}
}

// #endregion config

// #region input

// ProduceInput bundles what the turn loop knows when computing signals.
type ProduceInput struct {
	Text     string // current user message
	Previous string // previous user message, empty on the first turn
}

// #endregion input
