package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"perpsim/src/model"
)

func testEngineConfig() Config {
	return Config{
		StartingBalance: 10000,
		TradeSizeUSD:    100,
		Leverage:        2,
		StopLossPct:     0.02,
		TakeProfitPct:   0.04,
		FeeRate:         0.001,
		ActionThreshold: 0.75,
		MaxFundingRate:  0.001,
	}
}

// newTestEngine disables the random funding draw so PnL is deterministic.
func newTestEngine(cfg Config) *Engine {
	e := New(cfg)
	e.funding = func() float64 { return 0 }
	return e
}

func TestOpenSetsDirectionAwareExits(t *testing.T) {
	e := newTestEngine(testEngineConfig())

	long, err := e.Open("ETH", model.SideLong, 3000)
	if err != nil {
		t.Fatalf("open long: %v", err)
	}
	assert.InDelta(t, 2940.0, long.StopLoss, 1e-9)
	assert.InDelta(t, 3120.0, long.TakeProfit, 1e-9)

	short, err := e.Open("BTC", model.SideShort, 3000)
	if err != nil {
		t.Fatalf("open short: %v", err)
	}
	assert.InDelta(t, 3060.0, short.StopLoss, 1e-9)
	assert.InDelta(t, 2880.0, short.TakeProfit, 1e-9)

	// size = 100 * 2 / 3000, entry fee = 200 * 0.001
	assert.InDelta(t, 200.0/3000.0, long.Size, 1e-12)
	assert.InDelta(t, 0.2, long.FeesPaid, 1e-9)
}

func TestPnlIsExactlySymmetric(t *testing.T) {
	up := directionalPnl(model.SideLong, 3000, 3150, 0.0666, 2)
	down := directionalPnl(model.SideShort, 3000, 2850, 0.0666, 2)
	if up != down {
		t.Fatalf("long and short PnL not symmetric: %v vs %v", up, down)
	}

	lossLong := directionalPnl(model.SideLong, 3000, 2850, 0.0666, 2)
	if lossLong != -up {
		t.Fatalf("gain and loss not mirrored: %v vs %v", up, lossLong)
	}
}

func TestMarkToMarketUpdatesUnrealized(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	p, err := e.Open("ETH", model.SideLong, 3000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	closed := e.MarkToMarket(3030)
	if len(closed) != 0 {
		t.Fatalf("no exit should trigger at 3030, closed %d", len(closed))
	}

	open := e.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions: got %d", len(open))
	}
	// (3030-3000) * size * leverage = 30 * (200/3000) * 2
	assert.InDelta(t, 4.0, open[0].UnrealizedPnl, 1e-9)
	assert.Equal(t, p.ID, open[0].ID)
}

func TestMarkToMarketTriggersStopLoss(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	p, err := e.Open("ETH", model.SideLong, 3000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	closed := e.MarkToMarket(p.StopLoss)
	if len(closed) != 1 {
		t.Fatalf("stop loss must close the position, closed %d", len(closed))
	}
	if closed[0].CloseReason != CloseReasonStopLoss {
		t.Fatalf("close reason: got %s", closed[0].CloseReason)
	}
	if closed[0].RealizedPnl >= 0 {
		t.Fatalf("stopped-out long must realize a loss: %f", closed[0].RealizedPnl)
	}
	if len(e.OpenPositions()) != 0 {
		t.Fatal("position must leave the open set")
	}
}

func TestMarkToMarketTriggersTakeProfitForShort(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	p, err := e.Open("ETH", model.SideShort, 3000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	closed := e.MarkToMarket(p.TakeProfit)
	if len(closed) != 1 || closed[0].CloseReason != CloseReasonTakeProfit {
		t.Fatalf("take profit not triggered: %+v", closed)
	}
	if closed[0].RealizedPnl <= 0 {
		t.Fatalf("short take profit must realize a gain: %f", closed[0].RealizedPnl)
	}
}

func TestBalanceInvariant(t *testing.T) {
	cfg := testEngineConfig()
	e := newTestEngine(cfg)

	if _, err := e.Open("ETH", model.SideLong, 3000); err != nil {
		t.Fatalf("open: %v", err)
	}
	e.MarkToMarket(3100)
	e.MarkToMarket(3150) // take profit at 3120 triggers here

	if _, err := e.Open("ETH", model.SideShort, 3150); err != nil {
		t.Fatalf("open second: %v", err)
	}
	e.MarkToMarket(3100)

	realizedSum := 0.0
	for _, trade := range e.TradeHistory() {
		realizedSum += trade.RealizedPnl
	}
	openEntryFees := 0.0
	for _, p := range e.OpenPositions() {
		openEntryFees += p.FeesPaid
	}

	want := cfg.StartingBalance + realizedSum - openEntryFees
	assert.InDelta(t, want, e.Summary().Balance, 1e-9)
}

func TestOpenRejectsWhenFeeExceedsBalance(t *testing.T) {
	cfg := testEngineConfig()
	cfg.StartingBalance = 0.1
	e := newTestEngine(cfg)

	if _, err := e.Open("ETH", model.SideLong, 3000); err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if len(e.OpenPositions()) != 0 {
		t.Fatal("rejected open must not create a position")
	}
}

func TestOpenPanicsOnNonPositivePrice(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	e.Open("ETH", model.SideLong, 0)
}

func TestClosePanicsOnUnknownPosition(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	e.Close("no-such-id", 3000, CloseReasonManual)
}

func TestApplyIgnoresLowConfidence(t *testing.T) {
	e := newTestEngine(testEngineConfig())

	flipped, opened := e.Apply(model.AggregatedDecision{Action: model.ActionLong, Confidence: 0.5}, "ETH", 3000)
	if flipped != nil || opened != nil {
		t.Fatal("sub-threshold decision must not trade")
	}

	flipped, opened = e.Apply(model.AggregatedDecision{Action: model.ActionHold, Confidence: 0.9}, "ETH", 3000)
	if flipped != nil || opened != nil {
		t.Fatal("hold must not trade")
	}
}

func TestApplyOnePositionPerSymbol(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	long := model.AggregatedDecision{Action: model.ActionLong, Confidence: 0.9}

	_, opened := e.Apply(long, "ETH", 3000)
	if opened == nil {
		t.Fatal("first decision must open")
	}

	flipped, again := e.Apply(long, "ETH", 3050)
	if flipped != nil || again != nil {
		t.Fatal("same-direction decision with an open position must hold")
	}
	if len(e.OpenPositions()) != 1 {
		t.Fatalf("open positions: got %d want 1", len(e.OpenPositions()))
	}
}

func TestApplySignalFlipClosesAndReverses(t *testing.T) {
	e := newTestEngine(testEngineConfig())

	_, opened := e.Apply(model.AggregatedDecision{Action: model.ActionLong, Confidence: 0.9}, "ETH", 3000)
	if opened == nil {
		t.Fatal("open long")
	}

	flipped, reversed := e.Apply(model.AggregatedDecision{Action: model.ActionShort, Confidence: 0.9}, "ETH", 3010)
	if flipped == nil || flipped.CloseReason != CloseReasonSignalFlip {
		t.Fatalf("flip must close the long: %+v", flipped)
	}
	if reversed == nil || reversed.Side != model.SideShort {
		t.Fatalf("flip must open a short: %+v", reversed)
	}
}

func TestFundingAccrues(t *testing.T) {
	e := New(testEngineConfig())
	e.funding = func() float64 { return 0.001 }

	if _, err := e.Open("ETH", model.SideLong, 3000); err != nil {
		t.Fatalf("open: %v", err)
	}
	e.MarkToMarket(3000)
	e.MarkToMarket(3000)

	p := e.OpenPositions()[0]
	// size * price * rate per cycle, two cycles
	want := 2 * (200.0 / 3000.0) * 3000 * 0.001
	assert.InDelta(t, want, p.FundingPaid, 1e-9)

	closed := e.Close(p.ID, 3000, CloseReasonManual)
	if closed.RealizedPnl >= 0 {
		t.Fatal("funding and fees must drag a flat trade negative")
	}
	// realized = gross 0 - entry fee - exit fee - funding
	assert.InDelta(t, -(0.2 + 0.2 + want), closed.RealizedPnl, 1e-9)
}

func TestStateRoundTripThroughSnapshot(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	if _, err := e.Open("ETH", model.SideLong, 3000); err != nil {
		t.Fatalf("open: %v", err)
	}
	e.MarkToMarket(3150)

	snap := e.Snapshot()
	restored := NewFromState(testEngineConfig(), snap)

	assert.Equal(t, e.Summary(), restored.Summary())
	assert.Equal(t, e.Metrics(), restored.Metrics())
	assert.Equal(t, len(e.TradeHistory()), len(restored.TradeHistory()))
}

func TestNewFromStateNilIsFresh(t *testing.T) {
	e := NewFromState(testEngineConfig(), nil)
	if e.Summary().Balance != 10000 {
		t.Fatalf("fresh balance: got %f", e.Summary().Balance)
	}
}
