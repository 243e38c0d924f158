package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/store"
)

const (
	// modelVersion changes whenever the feature vector shape changes;
	// persisted weights from another version are discarded.
	modelVersion = "1"

	learningRate = 0.01
	epochs       = 80
	initJitter   = 0.1

	// MinTrainingTrades gates training: below this many closed trades the
	// scorer stays untrained and votes neutral.
	MinTrainingTrades = 10

	// confidenceNorm maps realized |PnL| onto the [0,1] confidence target.
	confidenceNorm = 100.0
)

// Sample is one training example: the features observed when a trade was
// opened and the realized outcome after it closed.
type Sample struct {
	Features   FeatureVector `json:"features"`
	Profitable bool          `json:"profitable"`
	PnlScale   float64       `json:"pnl_scale"` // min(|realizedPnl|/confidenceNorm, 1)
}

// Model is a linear model with two heads over the fixed feature vector: a
// sigmoid classification head (profit / no profit) and a linear confidence
// head predicting normalized PnL magnitude. Features are standardized with
// statistics captured at fit time.
type Model struct {
	Version string `json:"version"`

	SignalWeights  []float64 `json:"signal_weights"`
	SignalBias     float64   `json:"signal_bias"`
	ConfWeights    []float64 `json:"confidence_weights"`
	ConfBias       float64   `json:"confidence_bias"`
	FeatureMeans   []float64 `json:"feature_means"`
	FeatureStddevs []float64 `json:"feature_stddevs"`

	Trained     bool      `json:"trained"`
	SampleCount int       `json:"sample_count"`
	Accuracy    float64   `json:"accuracy"`
	TrainedAt   time.Time `json:"trained_at"`

	rng *rand.Rand
}

// NewModel creates an untrained model. The seed controls the weight jitter so
// tests can train deterministically.
func NewModel(seed int64) *Model {
	return &Model{
		Version: modelVersion,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Fit trains both heads with online gradient descent over the sample set.
// It refuses to train on fewer than MinTrainingTrades samples.
func (m *Model) Fit(samples []Sample) error {
	if len(samples) < MinTrainingTrades {
		return fmt.Errorf("insufficient training data: %d closed trades, need %d", len(samples), MinTrainingTrades)
	}

	rows := make([][]float64, len(samples))
	for i, s := range samples {
		rows[i] = s.Features.values()
	}
	m.FeatureMeans, m.FeatureStddevs = standardizationStats(rows)

	m.SignalWeights = m.initWeights()
	m.ConfWeights = m.initWeights()
	m.SignalBias = 0
	m.ConfBias = 0

	for epoch := 0; epoch < epochs; epoch++ {
		for i, s := range samples {
			x := m.standardize(rows[i])

			label := 0.0
			if s.Profitable {
				label = 1.0
			}
			predicted := sigmoid(dot(m.SignalWeights, x) + m.SignalBias)
			signalErr := label - predicted
			for j := range m.SignalWeights {
				m.SignalWeights[j] += learningRate * signalErr * x[j]
			}
			m.SignalBias += learningRate * signalErr

			confErr := s.PnlScale - (dot(m.ConfWeights, x) + m.ConfBias)
			for j := range m.ConfWeights {
				m.ConfWeights[j] += learningRate * confErr * x[j]
			}
			m.ConfBias += learningRate * confErr
		}
	}

	correct := 0
	for i, s := range samples {
		p, _ := m.predictStandardized(m.standardize(rows[i]))
		if (p > 0.5) == s.Profitable {
			correct++
		}
	}

	m.Trained = true
	m.SampleCount = len(samples)
	m.Accuracy = float64(correct) / float64(len(samples))
	m.TrainedAt = time.Now().UTC()

	logger.WithFields(logger.Fields{
		"samples":  m.SampleCount,
		"accuracy": m.Accuracy,
	}).Info("Trained signal model")
	return nil
}

// Predict returns the profit probability and the predicted confidence, both
// clamped into [0, 1]. An untrained model answers (0.5, 0.5).
func (m *Model) Predict(f FeatureVector) (probability, confidence float64) {
	if !m.Trained {
		return 0.5, 0.5
	}
	return m.predictStandardized(m.standardize(f.values()))
}

func (m *Model) predictStandardized(x []float64) (probability, confidence float64) {
	probability = sigmoid(dot(m.SignalWeights, x) + m.SignalBias)
	confidence = math.Min(math.Max(dot(m.ConfWeights, x)+m.ConfBias, 0), 1)
	return probability, confidence
}

func (m *Model) initWeights() []float64 {
	w := make([]float64, featureCount)
	for i := range w {
		w[i] = m.rng.NormFloat64() * initJitter
	}
	return w
}

func (m *Model) standardize(raw []float64) []float64 {
	x := make([]float64, len(raw))
	for i, v := range raw {
		x[i] = (v - m.FeatureMeans[i]) / m.FeatureStddevs[i]
	}
	return x
}

// Save persists the model weights next to the state file.
func (m *Model) Save(path string) error {
	return store.WriteJSONAtomic(path, m)
}

// LoadModel restores persisted weights. A missing file or a version mismatch
// yields a fresh untrained model, never an error the caller must handle
// beyond real I/O failures.
func LoadModel(path string, seed int64) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewModel(seed), nil
		}
		return nil, fmt.Errorf("read model file: %w", err)
	}

	m := NewModel(seed)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode model file %s: %w", path, err)
	}
	if m.Version != modelVersion || len(m.SignalWeights) != featureCount {
		logger.WithField("version", m.Version).Warn("Discarding persisted model with stale shape")
		return NewModel(seed), nil
	}

	return m, nil
}

func standardizationStats(rows [][]float64) (means, stds []float64) {
	means = make([]float64, featureCount)
	stds = make([]float64, featureCount)

	for _, row := range rows {
		for i, v := range row {
			means[i] += v
		}
	}
	n := float64(len(rows))
	for i := range means {
		means[i] /= n
	}

	for _, row := range rows {
		for i, v := range row {
			d := v - means[i]
			stds[i] += d * d
		}
	}
	for i := range stds {
		stds[i] = math.Sqrt(stds[i] / n)
		if stds[i] < 1e-9 {
			stds[i] = 1 // constant feature carries no signal either way
		}
	}
	return means, stds
}

func dot(w, x []float64) float64 {
	sum := 0.0
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
