package signals

import (
	"fmt"

	"perpsim/src/model"
)

// Scorer turns the current market snapshot plus trading context into one
// signed score in [-1, 1]. Scorers are side-effect-free; the learned scorer
// only mutates state through its explicit Fit call.
type Scorer interface {
	Name() string
	Score(snap model.MarketSnapshot, history []model.Position, metrics model.PortfolioMetrics) model.SignalScore
}

// Scorer names, also the keys of the weight table.
const (
	ScorerRSI       = "rsi"
	ScorerEMACross  = "ema_cross"
	ScorerBollinger = "bollinger"
	ScorerFunding   = "funding_rate"
	ScorerVolume    = "volume"
	ScorerSentiment = "sentiment"
	ScorerAI        = "ai_signal"
)

// Volume thresholds in quote currency.
const (
	highVolumeThreshold = 2_000_000.0
	lowVolumeThreshold  = 500_000.0
)

type RSIScorer struct{}

func (RSIScorer) Name() string { return ScorerRSI }

func (RSIScorer) Score(snap model.MarketSnapshot, _ []model.Position, _ model.PortfolioMetrics) model.SignalScore {
	var magnitude float64
	var rationale string

	switch {
	case snap.RSI < 30:
		magnitude, rationale = 0.8, "oversold (RSI < 30)"
	case snap.RSI > 70:
		magnitude, rationale = -0.8, "overbought (RSI > 70)"
	case snap.RSI < 40:
		magnitude, rationale = 0.4, "weakly oversold (RSI < 40)"
	case snap.RSI > 60:
		magnitude, rationale = -0.4, "weakly overbought (RSI > 60)"
	default:
		rationale = "RSI neutral"
	}

	return model.SignalScore{Source: ScorerRSI, Magnitude: magnitude, Rationale: rationale}
}

type EMACrossScorer struct{}

func (EMACrossScorer) Name() string { return ScorerEMACross }

func (EMACrossScorer) Score(snap model.MarketSnapshot, _ []model.Position, _ model.PortfolioMetrics) model.SignalScore {
	if snap.EMAFast > snap.EMASlow {
		return model.SignalScore{Source: ScorerEMACross, Magnitude: 0.6, Rationale: "fast EMA above slow EMA"}
	}
	return model.SignalScore{Source: ScorerEMACross, Magnitude: -0.6, Rationale: "fast EMA below slow EMA"}
}

type BollingerScorer struct{}

func (BollingerScorer) Name() string { return ScorerBollinger }

func (BollingerScorer) Score(snap model.MarketSnapshot, _ []model.Position, _ model.PortfolioMetrics) model.SignalScore {
	switch {
	case snap.Price < snap.BBLower:
		return model.SignalScore{Source: ScorerBollinger, Magnitude: 0.7, Rationale: "price below lower band"}
	case snap.Price > snap.BBUpper:
		return model.SignalScore{Source: ScorerBollinger, Magnitude: -0.7, Rationale: "price above upper band"}
	}
	return model.SignalScore{Source: ScorerBollinger, Magnitude: 0, Rationale: "price within bands"}
}

// FundingScorer is contrarian: crowded longs pay shorts, which biases toward
// mean reversion.
type FundingScorer struct{}

func (FundingScorer) Name() string { return ScorerFunding }

func (FundingScorer) Score(snap model.MarketSnapshot, _ []model.Position, _ model.PortfolioMetrics) model.SignalScore {
	switch {
	case snap.FundingRate > 0.01:
		return model.SignalScore{Source: ScorerFunding, Magnitude: -0.5, Rationale: fmt.Sprintf("high funding rate %.4f", snap.FundingRate)}
	case snap.FundingRate < -0.01:
		return model.SignalScore{Source: ScorerFunding, Magnitude: 0.5, Rationale: fmt.Sprintf("negative funding rate %.4f", snap.FundingRate)}
	}
	return model.SignalScore{Source: ScorerFunding, Magnitude: 0, Rationale: "funding rate neutral"}
}

type VolumeScorer struct{}

func (VolumeScorer) Name() string { return ScorerVolume }

func (VolumeScorer) Score(snap model.MarketSnapshot, _ []model.Position, _ model.PortfolioMetrics) model.SignalScore {
	switch {
	case snap.Volume24h > highVolumeThreshold:
		return model.SignalScore{Source: ScorerVolume, Magnitude: 0.3, Rationale: "high 24h volume"}
	case snap.Volume24h < lowVolumeThreshold:
		return model.SignalScore{Source: ScorerVolume, Magnitude: -0.3, Rationale: "low 24h volume"}
	}
	return model.SignalScore{Source: ScorerVolume, Magnitude: 0, Rationale: "volume in normal range"}
}

// SentimentScorer trades against fear/greed extremes.
type SentimentScorer struct{}

func (SentimentScorer) Name() string { return ScorerSentiment }

func (SentimentScorer) Score(snap model.MarketSnapshot, _ []model.Position, _ model.PortfolioMetrics) model.SignalScore {
	switch {
	case snap.FearGreedIndex < 25:
		return model.SignalScore{Source: ScorerSentiment, Magnitude: 0.6, Rationale: "extreme fear, contrarian buy"}
	case snap.FearGreedIndex > 75:
		return model.SignalScore{Source: ScorerSentiment, Magnitude: -0.6, Rationale: "extreme greed, contrarian sell"}
	}
	return model.SignalScore{Source: ScorerSentiment, Magnitude: 0, Rationale: "sentiment neutral"}
}
