package ai

import (
	"testing"
	"time"

	"perpsim/src/model"
)

func TestExtractFeaturesWithoutHistory(t *testing.T) {
	at := time.Date(2026, 8, 22, 14, 0, 0, 0, time.UTC) // a Saturday
	f := ExtractFeatures(model.MarketSnapshot{Price: 3000, RSI: 42}, nil, model.PortfolioMetrics{}, at)

	if f.RecentWinRate != 0.5 {
		t.Fatalf("empty history win rate: got %f want 0.5", f.RecentWinRate)
	}
	if f.IsWeekend != 1 {
		t.Fatalf("saturday must set weekend flag")
	}
	if f.HourOfDay != 14 || f.DayOfWeek != int(time.Saturday) {
		t.Fatalf("time features: hour=%d day=%d", f.HourOfDay, f.DayOfWeek)
	}
	if f.Price != 3000 || f.RSI != 42 {
		t.Fatalf("market features not carried over: %+v", f)
	}
}

func TestExtractFeaturesStreaks(t *testing.T) {
	history := []model.Position{
		{RealizedPnl: -5},
		{RealizedPnl: 10},
		{RealizedPnl: 20},
		{RealizedPnl: 15},
	}
	f := ExtractFeatures(model.MarketSnapshot{}, history, model.PortfolioMetrics{}, time.Now())

	if f.ConsecutiveWins != 3 || f.ConsecutiveLosses != 0 {
		t.Fatalf("streak: wins=%d losses=%d", f.ConsecutiveWins, f.ConsecutiveLosses)
	}
	if f.RecentWinRate != 0.75 {
		t.Fatalf("win rate: got %f want 0.75", f.RecentWinRate)
	}
	if f.PnlTrend != 10 {
		t.Fatalf("pnl trend: got %f want 10", f.PnlTrend)
	}
	if f.TotalTrades != 4 {
		t.Fatalf("total trades: got %d", f.TotalTrades)
	}
}

func TestExtractFeaturesLossStreak(t *testing.T) {
	history := []model.Position{
		{RealizedPnl: 30},
		{RealizedPnl: -5},
		{RealizedPnl: -8},
	}
	f := ExtractFeatures(model.MarketSnapshot{}, history, model.PortfolioMetrics{}, time.Now())

	if f.ConsecutiveLosses != 2 || f.ConsecutiveWins != 0 {
		t.Fatalf("streak: wins=%d losses=%d", f.ConsecutiveWins, f.ConsecutiveLosses)
	}
}

func TestFeatureVectorShape(t *testing.T) {
	if got := len(FeatureVector{}.values()); got != featureCount {
		t.Fatalf("feature vector has %d values, featureCount is %d", got, featureCount)
	}
}
