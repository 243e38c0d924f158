package model

// PortfolioMetrics is recomputed incrementally on every position close.
// CurrentBalance always equals StartingBalance plus the sum of realized PnL
// across the trade history, minus entry fees of positions still open.
type PortfolioMetrics struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	TotalPnl        float64 `json:"total_pnl"`
	TotalFees       float64 `json:"total_fees"`
	TotalFunding    float64 `json:"total_funding"`
	WinRate         float64 `json:"win_rate"`
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	StartingBalance float64 `json:"starting_balance"`
	CurrentBalance  float64 `json:"current_balance"`
}
