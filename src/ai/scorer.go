package ai

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/model"
	"perpsim/src/signals"
)

// Prediction thresholds: probabilities between them make no directional call.
const (
	longProbability  = 0.6
	shortProbability = 0.4

	// retrainEvery new realized outcomes trigger a refit once the gate is
	// passed.
	retrainEvery = 10

	maxSamples = 1000
)

// Scorer wraps the linear model behind the signals.Scorer interface. Score
// never mutates; learning happens only through Learn and Retrain.
type Scorer struct {
	now       func() time.Time
	modelPath string

	mu           sync.Mutex
	model        *Model
	samples      []Sample
	sinceLastFit int
}

var _ signals.Scorer = (*Scorer)(nil)

// NewScorer builds the learned scorer around an existing model. The model
// path is where Retrain persists updated weights.
func NewScorer(m *Model, modelPath string) *Scorer {
	return &Scorer{
		now:       time.Now,
		modelPath: modelPath,
		model:     m,
	}
}

func (s *Scorer) Name() string { return signals.ScorerAI }

// Score predicts the profit probability for the current market state and maps
// it onto a signed magnitude. Below the training gate it votes neutral.
func (s *Scorer) Score(snap model.MarketSnapshot, history []model.Position, metrics model.PortfolioMetrics) model.SignalScore {
	features := ExtractFeatures(snap, history, metrics, s.now())

	s.mu.Lock()
	trained := s.model.Trained
	probability, confidence := s.model.Predict(features)
	s.mu.Unlock()

	if !trained {
		return model.SignalScore{
			Source:    signals.ScorerAI,
			Magnitude: 0,
			Rationale: fmt.Sprintf("insufficient training data: %d closed trades, need %d", len(history), MinTrainingTrades),
		}
	}

	var magnitude float64
	action := model.ActionHold
	switch {
	case probability > longProbability:
		magnitude = confidence
		action = model.ActionLong
	case probability < shortProbability:
		magnitude = -confidence
		action = model.ActionShort
	}

	return model.SignalScore{
		Source:    signals.ScorerAI,
		Magnitude: magnitude,
		Rationale: reasoning(features, action, confidence),
	}
}

// Learn records one realized outcome as a training sample and refits the
// model every retrainEvery outcomes once enough samples exist.
func (s *Scorer) Learn(features FeatureVector, closed model.Position) {
	sample := Sample{
		Features:   features,
		Profitable: closed.RealizedPnl > 0,
		PnlScale:   math.Min(math.Abs(closed.RealizedPnl)/confidenceNorm, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}

	s.sinceLastFit++
	if len(s.samples) >= MinTrainingTrades && s.sinceLastFit >= retrainEvery {
		s.sinceLastFit = 0
		s.refitLocked()
	}
}

// Retrain fits the model on a full training set built from persisted history,
// replacing any accumulated in-memory samples.
func (s *Scorer) Retrain(samples []Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = samples
	if err := s.model.Fit(samples); err != nil {
		return err
	}
	s.persistLocked()
	return nil
}

func (s *Scorer) refitLocked() {
	if err := s.model.Fit(s.samples); err != nil {
		logger.WithError(err).Warn("Skipping model refit")
		return
	}
	s.persistLocked()
}

func (s *Scorer) persistLocked() {
	if s.modelPath == "" {
		return
	}
	if err := s.model.Save(s.modelPath); err != nil {
		logger.WithError(err).Warn("Failed to persist model weights")
	}
}

// TrainingSetFromHistory rebuilds training samples from the closed-trade
// ledger. Market state at trade time is not archived, so market features
// carry the entry price and neutral indicator values; the history and
// portfolio features are recomputed from the trades preceding each sample.
func TrainingSetFromHistory(history []model.Position, metrics model.PortfolioMetrics) []Sample {
	samples := make([]Sample, 0, len(history))
	for i, trade := range history {
		if trade.Status != model.PositionStatusClosed {
			continue
		}

		snap := model.MarketSnapshot{
			Price:          trade.EntryPrice,
			RSI:            50,
			EMAFast:        trade.EntryPrice,
			EMASlow:        trade.EntryPrice,
			BBUpper:        trade.EntryPrice,
			BBMiddle:       trade.EntryPrice,
			BBLower:        trade.EntryPrice,
			Volume24h:      1_000_000,
			FearGreedIndex: 50,
		}

		samples = append(samples, Sample{
			Features:   ExtractFeatures(snap, history[:i], metrics, trade.EntryTime),
			Profitable: trade.RealizedPnl > 0,
			PnlScale:   math.Min(math.Abs(trade.RealizedPnl)/confidenceNorm, 1),
		})
	}
	return samples
}

// reasoning names the dominant features behind a prediction.
func reasoning(f FeatureVector, action string, confidence float64) string {
	var reasons []string

	switch {
	case f.RecentWinRate > 0.7:
		reasons = append(reasons, "strong recent performance")
	case f.RecentWinRate < 0.3:
		reasons = append(reasons, "poor recent performance")
	}

	switch {
	case f.RSI < 30:
		reasons = append(reasons, "oversold conditions (RSI < 30)")
	case f.RSI > 70:
		reasons = append(reasons, "overbought conditions (RSI > 70)")
	}

	switch {
	case f.ConsecutiveLosses > 3:
		reasons = append(reasons, "multiple consecutive losses")
	case f.ConsecutiveWins > 3:
		reasons = append(reasons, "multiple consecutive wins")
	}

	switch {
	case f.FundingRate > 0.01:
		reasons = append(reasons, "high funding rate")
	case f.FundingRate < -0.01:
		reasons = append(reasons, "negative funding rate")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "balanced market conditions")
	}

	return fmt.Sprintf("model %s: %s, confidence %.0f%%", action, strings.Join(reasons, ", "), confidence*100)
}
