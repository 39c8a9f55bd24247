package orchestrator

import (
	"github.com/danielpatrickdp/arbiter/internal/eval"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
)

// #region strategy-definitions

// Strategies returns the full set of built-in strategy configs.
var Strategies = map[StrategyID]StrategyConfig{
	StrategyDefault: {ID: StrategyDefault},
	StrategyGround: {
		ID:             StrategyGround,
		PromptModifier: "Name your sources or say plainly what you verified and how: ",
	},
	StrategyConcrete: {
		ID:             StrategyConcrete,
		PromptModifier: "Be concrete: give numbers, named steps or an example instead of general statements: ",
	},
	StrategyCalibrate: {
		ID:             StrategyCalibrate,
		PromptModifier: "State your real confidence and what would change it; do not overstate certainty: ",
	},
	StrategyDirect: {
		ID:             StrategyDirect,
		PromptModifier: "Respond directly to: ",
	},
	StrategyPlain: {
		ID:             StrategyPlain,
		PromptModifier: "Answer from your own perspective without talking about your limitations: ",
	},
}

// strategyOrder is the fallback order once an escalation chain is exhausted.
var strategyOrder = []StrategyID{
	StrategyDefault, StrategyDirect, StrategyConcrete, StrategyGround, StrategyCalibrate, StrategyPlain,
}

// #endregion

// #region retry-escalation

// failureEscalation maps a detected failure to an ordered strategy chain.
var failureEscalation = map[FailureType][]StrategyID{
	FailureEmpty:      {StrategyDirect, StrategyConcrete},
	FailureRepetition: {StrategyConcrete, StrategyDirect},
	FailureRefusal:    {StrategyPlain, StrategyDirect},
	FailureDeflection: {StrategyDirect, StrategyConcrete},
	FailureEcho:       {StrategyConcrete, StrategyDirect},
}

// flagEscalation maps an evaluation flag to an ordered strategy chain. Flags are consulted
// in eval.Flags order when no textual failure was detected.
var flagEscalation = map[eval.Flag][]StrategyID{
	eval.FlagLowAccuracy:   {StrategyGround, StrategyConcrete},
	eval.FlagSmoothEmpty:   {StrategyConcrete, StrategyDirect},
	eval.FlagInflatedOmega: {StrategyCalibrate, StrategyGround},
	eval.FlagNoDelta:       {StrategyDirect},
}

// #endregion

// #region selector

// StrategySelector picks strategies from playbook history and failure signals.
type StrategySelector struct {
	memory *OutcomeMemory // nil = no learning
}

// NewStrategySelector creates a selector with optional memory backing.
func NewStrategySelector(memory *OutcomeMemory) *StrategySelector {
	return &StrategySelector{memory: memory}
}

// #endregion

// #region select-initial

// SelectInitial picks the first strategy for a turn.
func (s *StrategySelector) SelectInitial(pb playbook.Playbook) StrategyConfig {
	// Learned data needs 3+ accepted samples
	if s.memory != nil {
		learned, _, err := s.memory.BestStrategy(pb)
		if err == nil && learned != "" {
			if cfg, ok := Strategies[learned]; ok {
				return cfg
			}
		}
	}
	return Strategies[StrategyDefault]
}

// #endregion

// #region select-retry

// SelectRetry picks the next strategy after a failed attempt, avoiding already-tried strategies.
func (s *StrategySelector) SelectRetry(failure FailureType, flags []eval.Flag, tried []StrategyID) *StrategyConfig {
	triedSet := make(map[StrategyID]bool)
	for _, t := range tried {
		triedSet[t] = true
	}

	var chain []StrategyID
	if c, ok := failureEscalation[failure]; ok {
		chain = append(chain, c...)
	}
	for _, f := range eval.Flags {
		if hasFlag(flags, f) {
			chain = append(chain, flagEscalation[f]...)
		}
	}
	chain = append(chain, strategyOrder...)

	for _, sid := range chain {
		if !triedSet[sid] {
			cfg := Strategies[sid]
			return &cfg
		}
	}
	return nil // all strategies exhausted
}

func hasFlag(flags []eval.Flag, f eval.Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

// #endregion
