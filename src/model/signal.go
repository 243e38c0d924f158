package model

import "time"

const (
	ActionLong  = "long"
	ActionShort = "short"
	ActionHold  = "hold"
)

// SignalScore is the output of one scorer for one cycle. Magnitude is a signed
// value in [-1, 1]; positive means long bias, negative short, zero neutral.
type SignalScore struct {
	Source    string  `json:"source"`
	Magnitude float64 `json:"magnitude"`
	Rationale string  `json:"rationale,omitempty"`
}

// Direction maps the magnitude sign onto an action label.
func (s SignalScore) Direction() string {
	switch {
	case s.Magnitude > 0:
		return ActionLong
	case s.Magnitude < 0:
		return ActionShort
	default:
		return ActionHold
	}
}

// AggregatedDecision is the weighted combination of all scorer outputs.
type AggregatedDecision struct {
	Action        string             `json:"action"`
	Confidence    float64            `json:"confidence"`
	CombinedScore float64            `json:"combined_score"`
	Breakdown     map[string]float64 `json:"breakdown"`
	Timestamp     time.Time          `json:"timestamp"`
}
