package signals

import (
	"math"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/model"
)

// Weight bounds and adjustment factor for the adaptation loop. The loop is a
// slow, bounded feedback mechanism: no scorer may dominate or vanish.
const (
	minWeight        = 0.05
	maxWeight        = 0.4
	adjustmentFactor = 0.2
	maxOutcomes      = 200
)

// DefaultWeights returns the initial weight table. The learned scorer keeps a
// fixed share; only rule-scorer weights adapt.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		ScorerRSI:       0.2,
		ScorerEMACross:  0.15,
		ScorerBollinger: 0.15,
		ScorerFunding:   0.1,
		ScorerVolume:    0.1,
		ScorerSentiment: 0.1,
		ScorerAI:        0.2,
	}
}

// outcome pairs a decision's per-scorer breakdown with the direction that
// turned out to be profitable.
type outcome struct {
	breakdown  map[string]float64
	profitable string // model.SideLong or model.SideShort
}

// Aggregator combines scorer outputs into one decision and owns the scorer
// weight table (single writer).
type Aggregator struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	weights    map[string]float64
	outcomes   []outcome
	sinceAdapt int
}

func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		now:     time.Now,
		weights: DefaultWeights(),
	}
}

// Combine computes the weighted sum of all scores and maps it onto an action.
// Identical scores and weights always produce an identical decision.
func (a *Aggregator) Combine(scores []model.SignalScore) model.AggregatedDecision {
	weights := a.Weights()

	combined := 0.0
	breakdown := make(map[string]float64, len(scores))
	for _, s := range scores {
		breakdown[s.Source] = s.Magnitude
		combined += s.Magnitude * weights[s.Source]
	}

	decision := model.AggregatedDecision{
		Action:        model.ActionHold,
		Confidence:    0.5,
		CombinedScore: combined,
		Breakdown:     breakdown,
		Timestamp:     a.now().UTC(),
	}

	switch {
	case combined > a.cfg.DecisionThreshold:
		decision.Action = model.ActionLong
		decision.Confidence = math.Min(combined, 1.0)
	case combined < -a.cfg.DecisionThreshold:
		decision.Action = model.ActionShort
		decision.Confidence = math.Min(-combined, 1.0)
	}

	return decision
}

// Weights returns a copy of the current weight table.
func (a *Aggregator) Weights() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]float64, len(a.weights))
	for k, v := range a.weights {
		out[k] = v
	}
	return out
}

// SetWeights replaces the weight table. Adaptation keeps running from the
// new values.
func (a *Aggregator) SetWeights(w map[string]float64) {
	if len(w) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weights = make(map[string]float64, len(w))
	for k, v := range w {
		a.weights[k] = v
	}
}

// RecordOutcome feeds one realized trade back into the adaptation loop. The
// profitable direction is the closed position's side when it made money and
// the opposite side when it lost.
func (a *Aggregator) RecordOutcome(decision model.AggregatedDecision, closed model.Position) {
	profitable := closed.Side
	if closed.RealizedPnl <= 0 {
		profitable = oppositeSide(closed.Side)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.outcomes = append(a.outcomes, outcome{breakdown: decision.Breakdown, profitable: profitable})
	if len(a.outcomes) > maxOutcomes {
		a.outcomes = a.outcomes[len(a.outcomes)-maxOutcomes:]
	}

	a.sinceAdapt++
	if a.sinceAdapt >= a.cfg.AdaptEvery {
		a.sinceAdapt = 0
		a.adaptWeightsLocked()
	}
}

// adaptWeightsLocked nudges each rule scorer's weight toward its recent
// directional accuracy, clamps into [minWeight, maxWeight] and renormalizes
// so the rule scorers keep their aggregate share against the learned scorer.
func (a *Aggregator) adaptWeightsLocked() {
	window := a.outcomes
	if len(window) > a.cfg.AccuracyWindow {
		window = window[len(window)-a.cfg.AccuracyWindow:]
	}

	target := 0.0
	for name, w := range a.weights {
		if name != ScorerAI {
			target += w
		}
	}

	for name := range a.weights {
		if name == ScorerAI {
			continue
		}
		acc := directionalAccuracy(window, name)
		w := a.weights[name] * (1 + (acc-0.5)*adjustmentFactor)
		a.weights[name] = clampWeight(w)
	}

	a.renormalizeLocked(target)

	logger.WithField("weights", a.weights).Info("Adapted scorer weights")
}

// renormalizeLocked scales rule-scorer weights back to the target sum while
// respecting the clamp bounds. Weights pinned at a bound stop absorbing the
// residual, so a few passes converge.
func (a *Aggregator) renormalizeLocked(target float64) {
	for iter := 0; iter < 4; iter++ {
		sum := 0.0
		for name, w := range a.weights {
			if name != ScorerAI {
				sum += w
			}
		}
		residual := target - sum
		if math.Abs(residual) < 1e-9 {
			return
		}

		freeSum := 0.0
		for name, w := range a.weights {
			if name == ScorerAI {
				continue
			}
			if (residual > 0 && w < maxWeight) || (residual < 0 && w > minWeight) {
				freeSum += w
			}
		}
		if freeSum == 0 {
			return
		}

		for name, w := range a.weights {
			if name == ScorerAI {
				continue
			}
			if (residual > 0 && w < maxWeight) || (residual < 0 && w > minWeight) {
				a.weights[name] = clampWeight(w + residual*w/freeSum)
			}
		}
	}
}

// directionalAccuracy is the fraction of outcomes where the scorer's sign
// matched the realized profitable direction. Neutral scores make no
// prediction and are skipped; with no predictions the scorer is treated as a
// coin flip.
func directionalAccuracy(window []outcome, scorer string) float64 {
	var correct, total int
	for _, o := range window {
		score, ok := o.breakdown[scorer]
		if !ok || score == 0 {
			continue
		}
		total++

		predicted := model.SideLong
		if score < 0 {
			predicted = model.SideShort
		}
		if predicted == o.profitable {
			correct++
		}
	}

	if total == 0 {
		return 0.5
	}
	return float64(correct) / float64(total)
}

func clampWeight(w float64) float64 {
	return math.Min(maxWeight, math.Max(minWeight, w))
}

func oppositeSide(side string) string {
	if side == model.SideLong {
		return model.SideShort
	}
	return model.SideLong
}
