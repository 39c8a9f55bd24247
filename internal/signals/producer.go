package signals

import (
	"math"

	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/update"
)

// #region producer

// Producer computes heuristic signals from the user's text.
type Producer struct {
	tables *patterns.Table
	config ProducerConfig
}

// NewProducer creates a Producer. A nil tables uses the embedded defaults.
func NewProducer(tables *patterns.Table, config ProducerConfig) *Producer {
	if tables == nil {
		tables = patterns.Default()
	}
	return &Producer{tables: tables, config: config}
}

// #endregion producer

// #region produce

// Produce computes all signals from the given input.
func (p *Producer) Produce(input ProduceInput) update.Signals {
	cur := patterns.Keywords(input.Text)
	prev := patterns.Keywords(input.Previous)

	return update.Signals{
		Distress:        saturate(p.tables.Group(patterns.Distress).Hits(input.Text), 3),
		Rapport:         saturate(p.tables.Group(patterns.Rapport).Hits(input.Text), 2),
		Repetition:      p.repetition(cur, prev),
		TopicShift:      p.topicShift(cur, prev),
		Interrupt:       saturate(p.tables.Group(patterns.Interrupt).Hits(input.Text), 2),
		Brevity:         p.brevity(input.Text),
		LengthStability: lengthStability(input.Text, input.Previous),
		Crisis:          p.tables.Group(patterns.Crisis).Any(input.Text),
	}
}

// #endregion produce

// #region repetition

// repetition is the keyword overlap with the previous message when it crosses the threshold.
func (p *Producer) repetition(cur, prev []string) float64 {
	if len(cur) == 0 || len(prev) == 0 {
		return 0
	}
	o := patterns.Overlap(cur, prev)
	if o < p.config.RepeatOverlap {
		return 0
	}
	return o
}

// topicShift fires when a substantive message shares almost nothing with the previous one.
func (p *Producer) topicShift(cur, prev []string) float64 {
	if len(prev) == 0 || len(cur) < p.config.TopicMinKeywords {
		return 0
	}
	o := patterns.Overlap(cur, prev)
	if o >= p.config.TopicShiftOverlap {
		return 0
	}
	return 1 - o
}

// #endregion repetition

// #region length

func (p *Producer) brevity(text string) float64 {
	if len(patterns.Words(text)) < p.config.ShortReplyWords {
		return 1
	}
	return 0
}

// lengthStability compares word counts; .5 when there is nothing to compare.
func lengthStability(text, previous string) float64 {
	a := len(patterns.Words(text))
	b := len(patterns.Words(previous))
	if b == 0 {
		return 0.5
	}
	longest := math.Max(float64(a), float64(b))
	return 1 - math.Abs(float64(a-b))/longest
}

// #endregion length

// #region helpers

// saturate maps a hit count to [0,1], reaching 1 at full hits.
func saturate(hits, full int) float64 {
	if hits <= 0 {
		return 0
	}
	return math.Min(1, float64(hits)/float64(full))
}

// #endregion helpers
