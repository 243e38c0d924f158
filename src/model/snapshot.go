package model

import "time"

// MarketSnapshot aggregates the current price and derived indicators for one
// polling cycle. Immutable once built.
type MarketSnapshot struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	RSI            float64   `json:"rsi"`
	EMAFast        float64   `json:"ema_fast"`
	EMASlow        float64   `json:"ema_slow"`
	BBUpper        float64   `json:"bb_upper"`
	BBMiddle       float64   `json:"bb_middle"`
	BBLower        float64   `json:"bb_lower"`
	FundingRate    float64   `json:"funding_rate"`
	Volume24h      float64   `json:"volume_24h"`
	FearGreedIndex float64   `json:"fear_greed_index"`
	PriceChange1h  float64   `json:"price_change_1h"`
	PriceChange24h float64   `json:"price_change_24h"`
	Timestamp      time.Time `json:"timestamp"`
}
