package playbook

import (
	"time"

	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region playbook
// Playbook is a response-handling mode.
type Playbook string

const (
	Routine          Playbook = "routine"
	FactVerification Playbook = "fact_verification"
	EmotionalSupport Playbook = "emotional_support"
	Council          Playbook = "council"
	Crisis           Playbook = "crisis"
)

// #endregion playbook

// #region risk
// Risk is the estimated risk of the turn.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Stakes is the estimated consequence of a poor answer.
type Stakes string

const (
	StakesLow    Stakes = "low"
	StakesMedium Stakes = "medium"
	StakesHigh   Stakes = "high"
)

// #endregion risk

// #region depth
// Depth is how much verification a playbook expects.
type Depth string

const (
	DepthNone     Depth = "none"
	DepthLight    Depth = "light"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// #endregion depth

// #region message
// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role string    `json:"role"` // "user" | "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// #endregion message

// #region config
// Config is the static configuration of a playbook.
type Config struct {
	Playbook           Playbook
	RequiredVoices     []voice.ID
	OptionalVoices     []voice.ID
	Depth              Depth
	PanelSize          int           // deliberation panel, 0-5
	Budget             time.Duration // how long a caller should wait on generation
	SignatureMandatory bool
}

// Allows reports whether v is a required or optional voice of the playbook.
func (c Config) Allows(v voice.ID) bool {
	for _, r := range c.RequiredVoices {
		if r == v {
			return true
		}
	}
	for _, o := range c.OptionalVoices {
		if o == v {
			return true
		}
	}
	return false
}

// #endregion config

// #region classification
// Classification is the classifier's decision for a turn.
type Classification struct {
	Playbook        Playbook       `json:"playbook"`
	Risk            Risk           `json:"risk"`
	Stakes          Stakes         `json:"stakes"`
	SuggestedVoices []voice.ID     `json:"suggested_voices"`
	Confidence      float64        `json:"confidence"`
	Reason          string         `json:"reason"`
	Hits            map[string]int `json:"hits,omitempty"`
	RiskSignals     []string       `json:"risk_signals,omitempty"`
}

// #endregion classification
