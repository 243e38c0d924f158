package ai

import (
	"time"

	"perpsim/src/model"
)

// recentTradeWindow bounds the history-derived features to the last trades so
// old regimes stop influencing predictions.
const recentTradeWindow = 10

// FeatureVector is the fixed input shape of the learned scorer. Adding a
// field changes the model shape, so persisted weights carry a version and are
// discarded on mismatch.
type FeatureVector struct {
	Price          float64 `json:"price"`
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange24h float64 `json:"price_change_24h"`
	RSI            float64 `json:"rsi"`
	EMAFast        float64 `json:"ema_fast"`
	EMASlow        float64 `json:"ema_slow"`
	BBUpper        float64 `json:"bb_upper"`
	BBMiddle       float64 `json:"bb_middle"`
	BBLower        float64 `json:"bb_lower"`
	FundingRate    float64 `json:"funding_rate"`
	Volume24h      float64 `json:"volume_24h"`
	FearGreedIndex float64 `json:"fear_greed_index"`

	HourOfDay int     `json:"hour_of_day"`
	DayOfWeek int     `json:"day_of_week"`
	IsWeekend float64 `json:"is_weekend"`

	RecentWinRate     float64 `json:"recent_win_rate"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	PnlTrend          float64 `json:"pnl_trend"`
	TotalTrades       int     `json:"total_trades"`

	CurrentBalance float64 `json:"current_balance"`
	MaxDrawdown    float64 `json:"max_drawdown"`
}

// featureCount must match the length of values().
const featureCount = 22

// values flattens the vector into the fixed order the model weights use.
func (f FeatureVector) values() []float64 {
	return []float64{
		f.Price,
		f.PriceChange1h,
		f.PriceChange24h,
		f.RSI,
		f.EMAFast,
		f.EMASlow,
		f.BBUpper,
		f.BBMiddle,
		f.BBLower,
		f.FundingRate,
		f.Volume24h,
		f.FearGreedIndex,
		float64(f.HourOfDay),
		float64(f.DayOfWeek),
		f.IsWeekend,
		f.RecentWinRate,
		float64(f.ConsecutiveWins),
		float64(f.ConsecutiveLosses),
		f.PnlTrend,
		float64(f.TotalTrades),
		f.CurrentBalance,
		f.MaxDrawdown,
	}
}

// ExtractFeatures builds the feature vector for the current cycle from the
// market snapshot, the closed-trade history and the portfolio metrics.
func ExtractFeatures(snap model.MarketSnapshot, history []model.Position, metrics model.PortfolioMetrics, at time.Time) FeatureVector {
	f := FeatureVector{
		Price:          snap.Price,
		PriceChange1h:  snap.PriceChange1h,
		PriceChange24h: snap.PriceChange24h,
		RSI:            snap.RSI,
		EMAFast:        snap.EMAFast,
		EMASlow:        snap.EMASlow,
		BBUpper:        snap.BBUpper,
		BBMiddle:       snap.BBMiddle,
		BBLower:        snap.BBLower,
		FundingRate:    snap.FundingRate,
		Volume24h:      snap.Volume24h,
		FearGreedIndex: snap.FearGreedIndex,

		HourOfDay: at.UTC().Hour(),
		DayOfWeek: int(at.UTC().Weekday()),

		TotalTrades:    len(history),
		CurrentBalance: metrics.CurrentBalance,
		MaxDrawdown:    metrics.MaxDrawdown,
	}
	if wd := at.UTC().Weekday(); wd == time.Saturday || wd == time.Sunday {
		f.IsWeekend = 1
	}

	applyHistoryFeatures(&f, history)
	return f
}

func applyHistoryFeatures(f *FeatureVector, history []model.Position) {
	if len(history) == 0 {
		f.RecentWinRate = 0.5
		return
	}

	recent := history
	if len(recent) > recentTradeWindow {
		recent = recent[len(recent)-recentTradeWindow:]
	}

	wins := 0
	pnlSum := 0.0
	for _, p := range recent {
		if p.RealizedPnl > 0 {
			wins++
		}
		pnlSum += p.RealizedPnl
	}
	f.RecentWinRate = float64(wins) / float64(len(recent))
	f.PnlTrend = pnlSum / float64(len(recent))

	// Streak counting walks back from the latest trade and stops at the
	// first direction change.
	for i := len(recent) - 1; i >= 0; i-- {
		pnl := recent[i].RealizedPnl
		switch {
		case pnl > 0 && f.ConsecutiveLosses == 0:
			f.ConsecutiveWins++
		case pnl < 0 && f.ConsecutiveWins == 0:
			f.ConsecutiveLosses++
		default:
			return
		}
	}
}
