package model

import "time"

// TradeRecord is the durable archive row for a closed position.
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PositionID  string    `gorm:"uniqueIndex;size:64" json:"position_id"`
	Symbol      string    `gorm:"index" json:"symbol"`
	Side        string    `gorm:"size:10" json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Size        float64   `json:"size"`
	Leverage    float64   `json:"leverage"`
	RealizedPnl float64   `json:"realized_pnl"`
	FeesPaid    float64   `json:"fees_paid"`
	FundingPaid float64   `json:"funding_paid"`
	CloseReason string    `gorm:"size:50" json:"close_reason"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `gorm:"index" json:"closed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// FromClosedPosition builds the archive row for a position that has finished
// its lifecycle. Panics if the position is still open: archiving an open
// position is a programming error.
func FromClosedPosition(p Position) TradeRecord {
	if p.Status != PositionStatusClosed || p.ExitPrice == nil || p.ExitTime == nil {
		panic("model: FromClosedPosition called with a position that is not closed")
	}
	return TradeRecord{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   *p.ExitPrice,
		Size:        p.Size,
		Leverage:    p.Leverage,
		RealizedPnl: p.RealizedPnl,
		FeesPaid:    p.FeesPaid,
		FundingPaid: p.FundingPaid,
		CloseReason: p.CloseReason,
		OpenedAt:    p.EntryTime,
		ClosedAt:    *p.ExitTime,
	}
}
