package ai

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// separableSamples builds a training set where low RSI trades made money and
// high RSI trades lost.
func separableSamples(n int) []Sample {
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		f := FeatureVector{Price: 3000, Volume24h: 1_000_000, FearGreedIndex: 50, RecentWinRate: 0.5}
		profitable := i%2 == 0
		if profitable {
			f.RSI = 25
		} else {
			f.RSI = 75
		}
		samples = append(samples, Sample{Features: f, Profitable: profitable, PnlScale: 0.3})
	}
	return samples
}

func TestFitRefusesBelowGate(t *testing.T) {
	m := NewModel(1)
	if err := m.Fit(separableSamples(MinTrainingTrades - 1)); err == nil {
		t.Fatal("expected error for undersized training set")
	}
	if m.Trained {
		t.Fatal("model must stay untrained after refused fit")
	}
}

func TestUntrainedModelIsNeutral(t *testing.T) {
	p, c := NewModel(1).Predict(FeatureVector{RSI: 25})
	if p != 0.5 || c != 0.5 {
		t.Fatalf("untrained prediction: got (%f, %f) want (0.5, 0.5)", p, c)
	}
}

func TestModelSeparatesTrainingData(t *testing.T) {
	m := NewModel(42)
	if err := m.Fit(separableSamples(20)); err != nil {
		t.Fatalf("fit: %v", err)
	}

	bullish := FeatureVector{Price: 3000, RSI: 25, Volume24h: 1_000_000, FearGreedIndex: 50, RecentWinRate: 0.5}
	bearish := bullish
	bearish.RSI = 75

	pUp, _ := m.Predict(bullish)
	pDown, _ := m.Predict(bearish)

	if pUp <= 0.6 {
		t.Fatalf("profitable pattern probability too low: %f", pUp)
	}
	if pDown >= 0.4 {
		t.Fatalf("losing pattern probability too high: %f", pDown)
	}
	if m.Accuracy != 1.0 {
		t.Fatalf("training accuracy on separable data: got %f", m.Accuracy)
	}
}

func TestFitIsDeterministicPerSeed(t *testing.T) {
	samples := separableSamples(20)

	a := NewModel(7)
	b := NewModel(7)
	if err := a.Fit(samples); err != nil {
		t.Fatalf("fit a: %v", err)
	}
	if err := b.Fit(samples); err != nil {
		t.Fatalf("fit b: %v", err)
	}

	if !reflect.DeepEqual(a.SignalWeights, b.SignalWeights) {
		t.Fatal("same seed and samples must produce identical weights")
	}
}

func TestModelPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	m := NewModel(42)
	if err := m.Fit(separableSamples(20)); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if err := m.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := LoadModel(path, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !restored.Trained {
		t.Fatal("restored model must be trained")
	}

	f := FeatureVector{Price: 3000, RSI: 25, Volume24h: 1_000_000, FearGreedIndex: 50, RecentWinRate: 0.5}
	p1, c1 := m.Predict(f)
	p2, c2 := restored.Predict(f)
	if p1 != p2 || c1 != c2 {
		t.Fatalf("restored predictions differ: (%f, %f) vs (%f, %f)", p1, c1, p2, c2)
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	m, err := LoadModel(filepath.Join(t.TempDir(), "absent.json"), 1)
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if m.Trained {
		t.Fatal("fresh model must be untrained")
	}
}

func TestLoadModelDiscardsStaleShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(`{"version":"0","trained":true,"signal_weights":[1,2]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := LoadModel(path, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Trained {
		t.Fatal("stale model shape must be discarded")
	}
}
