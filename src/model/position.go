package model

import "time"

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"

	SideLong  = "long"
	SideShort = "short"
)

// Position is one simulated perp position. Size and EntryPrice are fixed at
// open; CurrentPrice, UnrealizedPnl and FundingPaid mutate every mark-to-market
// cycle until the position transitions to closed, after which it is immutable.
type Position struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	EntryPrice    float64    `json:"entry_price"`
	Size          float64    `json:"size"`
	Leverage      float64    `json:"leverage"`
	EntryTime     time.Time  `json:"entry_time"`
	CurrentPrice  float64    `json:"current_price"`
	UnrealizedPnl float64    `json:"unrealized_pnl"`
	RealizedPnl   float64    `json:"realized_pnl"`
	Status        string     `json:"status"`
	ExitPrice     *float64   `json:"exit_price,omitempty"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	CloseReason   string     `json:"close_reason,omitempty"`
	StopLoss      float64    `json:"stop_loss"`
	TakeProfit    float64    `json:"take_profit"`
	FeesPaid      float64    `json:"fees_paid"`
	FundingPaid   float64    `json:"funding_paid"`
}

// Notional returns the position value in quote currency at entry.
func (p Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
