package signals

import (
	"math"
	"reflect"
	"testing"
	"time"

	"perpsim/src/model"
)

func testConfig() Config {
	return Config{DecisionThreshold: 0.75, AdaptEvery: 20, AccuracyWindow: 20}
}

func bullishScores() []model.SignalScore {
	return []model.SignalScore{
		{Source: ScorerRSI, Magnitude: 0.8},
		{Source: ScorerEMACross, Magnitude: 0.6},
		{Source: ScorerBollinger, Magnitude: 0.7},
		{Source: ScorerFunding, Magnitude: 0.5},
		{Source: ScorerVolume, Magnitude: 0.3},
		{Source: ScorerSentiment, Magnitude: 0.6},
		{Source: ScorerAI, Magnitude: 1.0},
	}
}

func negate(scores []model.SignalScore) []model.SignalScore {
	out := make([]model.SignalScore, len(scores))
	for i, s := range scores {
		s.Magnitude = -s.Magnitude
		out[i] = s
	}
	return out
}

func TestCombineLongAboveThreshold(t *testing.T) {
	a := NewAggregator(testConfig())

	decision := a.Combine(bullishScores())
	if decision.Action != model.ActionLong {
		t.Fatalf("expected long, got %s (score %f)", decision.Action, decision.CombinedScore)
	}

	// 0.8*0.2 + 0.6*0.15 + 0.7*0.15 + 0.5*0.1 + 0.3*0.1 + 0.6*0.1 + 1.0*0.2
	want := 0.895
	if math.Abs(decision.CombinedScore-want) > 1e-9 {
		t.Fatalf("combined score: got %f want %f", decision.CombinedScore, want)
	}
	if math.Abs(decision.Confidence-want) > 1e-9 {
		t.Fatalf("confidence: got %f want %f", decision.Confidence, want)
	}
}

func TestCombineShortIsSymmetric(t *testing.T) {
	a := NewAggregator(testConfig())

	long := a.Combine(bullishScores())
	short := a.Combine(negate(bullishScores()))

	if short.Action != model.ActionShort {
		t.Fatalf("expected short, got %s", short.Action)
	}
	if math.Abs(long.CombinedScore+short.CombinedScore) > 1e-9 {
		t.Fatalf("scores not symmetric: %f vs %f", long.CombinedScore, short.CombinedScore)
	}
	if math.Abs(long.Confidence-short.Confidence) > 1e-9 {
		t.Fatalf("confidences not symmetric: %f vs %f", long.Confidence, short.Confidence)
	}
}

func TestCombineHoldBelowThreshold(t *testing.T) {
	a := NewAggregator(testConfig())

	decision := a.Combine([]model.SignalScore{
		{Source: ScorerRSI, Magnitude: 0.8},
		{Source: ScorerEMACross, Magnitude: 0.6},
		{Source: ScorerFunding, Magnitude: -0.5},
	})

	if decision.Action != model.ActionHold {
		t.Fatalf("expected hold, got %s (score %f)", decision.Action, decision.CombinedScore)
	}
	if decision.Confidence != 0.5 {
		t.Fatalf("hold confidence: got %f want 0.5", decision.Confidence)
	}
}

func TestCombineIsIdempotent(t *testing.T) {
	a := NewAggregator(testConfig())
	fixed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	scores := bullishScores()
	first := a.Combine(scores)
	second := a.Combine(scores)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decisions differ:\n%+v\n%+v", first, second)
	}
}

func closedTrade(side string, pnl float64) model.Position {
	return model.Position{Side: side, RealizedPnl: pnl, Status: model.PositionStatusClosed}
}

func TestAdaptationKeepsBoundsAndRuleShare(t *testing.T) {
	a := NewAggregator(testConfig())

	// RSI is always wrong, EMA always right, the rest make no prediction.
	decision := model.AggregatedDecision{Breakdown: map[string]float64{
		ScorerRSI:      0.8,
		ScorerEMACross: -0.6,
	}}

	for i := 0; i < 120; i++ {
		a.RecordOutcome(decision, closedTrade(model.SideShort, 15))
	}

	weights := a.Weights()
	ruleSum := 0.0
	for name, w := range weights {
		if name == ScorerAI {
			continue
		}
		ruleSum += w
		if w < minWeight-1e-9 || w > maxWeight+1e-9 {
			t.Fatalf("weight %s=%f outside [%f, %f]", name, w, minWeight, maxWeight)
		}
	}

	if math.Abs(ruleSum-0.8) > 1e-6 {
		t.Fatalf("rule scorer share drifted: got %f want 0.8", ruleSum)
	}
	if weights[ScorerAI] != 0.2 {
		t.Fatalf("learned scorer weight must stay fixed: got %f", weights[ScorerAI])
	}
	if weights[ScorerRSI] >= weights[ScorerEMACross] {
		t.Fatalf("inaccurate scorer should weigh less: rsi=%f ema=%f", weights[ScorerRSI], weights[ScorerEMACross])
	}
}

func TestAdaptationWaitsForBatch(t *testing.T) {
	a := NewAggregator(testConfig())
	before := a.Weights()

	decision := model.AggregatedDecision{Breakdown: map[string]float64{ScorerRSI: 0.8}}
	for i := 0; i < 19; i++ {
		a.RecordOutcome(decision, closedTrade(model.SideLong, 10))
	}

	if !reflect.DeepEqual(before, a.Weights()) {
		t.Fatal("weights must not change before a full adaptation batch")
	}

	a.RecordOutcome(decision, closedTrade(model.SideLong, 10))
	if reflect.DeepEqual(before, a.Weights()) {
		t.Fatal("weights must adapt after a full batch")
	}
}

func TestLosingTradeFlipsProfitableDirection(t *testing.T) {
	window := []outcome{
		{breakdown: map[string]float64{ScorerRSI: 0.8}, profitable: model.SideShort},
	}
	if acc := directionalAccuracy(window, ScorerRSI); acc != 0 {
		t.Fatalf("long prediction against short outcome: got %f want 0", acc)
	}
}

func TestDirectionalAccuracyWithoutPredictions(t *testing.T) {
	window := []outcome{
		{breakdown: map[string]float64{ScorerRSI: 0}, profitable: model.SideLong},
	}
	if acc := directionalAccuracy(window, ScorerRSI); acc != 0.5 {
		t.Fatalf("neutral scorer must count as coin flip: got %f", acc)
	}
	if acc := directionalAccuracy(nil, ScorerRSI); acc != 0.5 {
		t.Fatalf("empty window must count as coin flip: got %f", acc)
	}
}

func TestSetWeightsRestoresPersistedTable(t *testing.T) {
	a := NewAggregator(testConfig())

	persisted := map[string]float64{ScorerRSI: 0.3, ScorerEMACross: 0.5, ScorerAI: 0.2}
	a.SetWeights(persisted)

	got := a.Weights()
	if !reflect.DeepEqual(got, persisted) {
		t.Fatalf("restored weights: got %+v want %+v", got, persisted)
	}

	a.SetWeights(nil)
	if !reflect.DeepEqual(a.Weights(), persisted) {
		t.Fatal("empty table must not clobber current weights")
	}
}
