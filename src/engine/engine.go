package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"perpsim/src/model"
	"perpsim/src/store"
)

// Close reasons recorded on the position.
const (
	CloseReasonStopLoss   = "stop_loss"
	CloseReasonTakeProfit = "take_profit"
	CloseReasonSignalFlip = "signal_flip"
	CloseReasonManual     = "manual"
)

// ErrInsufficientBalance rejects an open whose entry fee exceeds the free
// balance. This is the only recoverable open failure; everything else is an
// invariant violation and panics.
var ErrInsufficientBalance = fmt.Errorf("insufficient balance for entry fee")

// Engine owns all mutable trading state: open positions, the closed-trade
// history and portfolio metrics. Single writer (the polling loop); readers
// get snapshot copies under RLock. Constructed once and passed by reference.
type Engine struct {
	cfg     Config
	now     func() time.Time
	newID   func() string
	funding func() float64

	mu              sync.RWMutex
	startingBalance float64
	currentBalance  float64
	peakBalance     float64
	positions       map[string]model.Position
	history         []model.Position
	metrics         model.PortfolioMetrics
}

// New builds an empty engine at the configured starting balance.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:             cfg,
		now:             time.Now,
		newID:           uuid.NewString,
		startingBalance: cfg.StartingBalance,
		currentBalance:  cfg.StartingBalance,
		peakBalance:     cfg.StartingBalance,
		positions:       map[string]model.Position{},
		metrics: model.PortfolioMetrics{
			StartingBalance: cfg.StartingBalance,
			CurrentBalance:  cfg.StartingBalance,
		},
	}
	e.funding = func() float64 {
		return (rand.Float64()*2 - 1) * cfg.MaxFundingRate
	}
	return e
}

// NewFromState restores an engine from a persisted simulation document.
func NewFromState(cfg Config, st *store.State) *Engine {
	e := New(cfg)
	if st == nil {
		return e
	}

	e.startingBalance = st.StartingBalance
	e.currentBalance = st.CurrentBalance
	e.peakBalance = st.CurrentBalance
	if st.StartingBalance > e.peakBalance {
		e.peakBalance = st.StartingBalance
	}
	for id, p := range st.Positions {
		e.positions[id] = p
	}
	e.history = append(e.history, st.TradeHistory...)
	e.metrics = st.Metrics
	return e
}

// Open creates a position at the given price. Size is the base-asset quantity
// backing tradeSizeUSD × leverage of notional. Returns ErrInsufficientBalance
// when the entry fee cannot be paid; panics on a non-positive price.
func (e *Engine) Open(symbol, side string, price float64) (model.Position, error) {
	if price <= 0 {
		panic(fmt.Sprintf("engine: open %s at non-positive price %f", symbol, price))
	}
	if side != model.SideLong && side != model.SideShort {
		panic(fmt.Sprintf("engine: open with invalid side %q", side))
	}

	size := e.cfg.TradeSizeUSD * e.cfg.Leverage / price
	notional := size * price
	fee := notional * e.cfg.FeeRate

	stopLoss := price * (1 - e.cfg.StopLossPct)
	takeProfit := price * (1 + e.cfg.TakeProfitPct)
	if side == model.SideShort {
		stopLoss = price * (1 + e.cfg.StopLossPct)
		takeProfit = price * (1 - e.cfg.TakeProfitPct)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if fee > e.currentBalance {
		return model.Position{}, fmt.Errorf("%w: fee %.2f, balance %.2f", ErrInsufficientBalance, fee, e.currentBalance)
	}

	position := model.Position{
		ID:           e.newID(),
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   price,
		Size:         size,
		Leverage:     e.cfg.Leverage,
		EntryTime:    e.now().UTC(),
		CurrentPrice: price,
		Status:       model.PositionStatusOpen,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		FeesPaid:     fee,
	}

	e.positions[position.ID] = position
	e.currentBalance -= fee
	e.metrics.TotalFees += fee
	e.metrics.CurrentBalance = e.currentBalance

	logger.WithFields(logger.Fields{
		"id":          position.ID,
		"side":        side,
		"entry":       price,
		"size":        size,
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	}).Info("Opened position")

	return position, nil
}

// MarkToMarket refreshes every open position against the given price: updates
// unrealized PnL, accrues one funding payment and auto-closes on stop-loss or
// take-profit breach. Returns the positions closed this cycle.
func (e *Engine) MarkToMarket(price float64) []model.Position {
	if price <= 0 {
		panic(fmt.Sprintf("engine: mark to market at non-positive price %f", price))
	}

	e.mu.Lock()

	var triggered []struct {
		id     string
		reason string
	}
	for id, p := range e.positions {
		p.CurrentPrice = price
		p.UnrealizedPnl = directionalPnl(p.Side, p.EntryPrice, price, p.Size, p.Leverage)
		p.FundingPaid += p.Size * price * e.funding()
		e.positions[id] = p

		if reason, breached := breachedExit(p, price); breached {
			triggered = append(triggered, struct {
				id     string
				reason string
			}{id, reason})
		}
	}
	e.mu.Unlock()

	closed := make([]model.Position, 0, len(triggered))
	for _, t := range triggered {
		closed = append(closed, e.Close(t.id, price, t.reason))
	}
	return closed
}

func breachedExit(p model.Position, price float64) (string, bool) {
	if p.Side == model.SideLong {
		switch {
		case price <= p.StopLoss:
			return CloseReasonStopLoss, true
		case price >= p.TakeProfit:
			return CloseReasonTakeProfit, true
		}
		return "", false
	}
	switch {
	case price >= p.StopLoss:
		return CloseReasonStopLoss, true
	case price <= p.TakeProfit:
		return CloseReasonTakeProfit, true
	}
	return "", false
}

// Close realizes a position at the given price and moves it into the trade
// history. Realized PnL nets out all fees and accrued funding; the balance
// absorbs only what was not already deducted at open. Closing an unknown or
// already-closed position is a programming error and panics.
func (e *Engine) Close(id string, price float64, reason string) model.Position {
	if price <= 0 {
		panic(fmt.Sprintf("engine: close %s at non-positive price %f", id, price))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[id]
	if !ok {
		panic(fmt.Sprintf("engine: close unknown position %s", id))
	}
	if p.Status != model.PositionStatusOpen {
		panic(fmt.Sprintf("engine: close already-closed position %s", id))
	}

	grossPnl := directionalPnl(p.Side, p.EntryPrice, price, p.Size, p.Leverage)
	exitFee := p.Size * price * e.cfg.FeeRate
	entryFee := p.FeesPaid

	realized := grossPnl - entryFee - exitFee - p.FundingPaid

	exitTime := e.now().UTC()
	p.Status = model.PositionStatusClosed
	p.ExitPrice = &price
	p.ExitTime = &exitTime
	p.CurrentPrice = price
	p.UnrealizedPnl = 0
	p.RealizedPnl = realized
	p.FeesPaid += exitFee
	p.CloseReason = reason

	// Entry fee already left the balance at open.
	e.currentBalance += grossPnl - exitFee - p.FundingPaid

	e.metrics.TotalTrades++
	e.metrics.TotalPnl += realized
	e.metrics.TotalFees += exitFee
	e.metrics.TotalFunding += p.FundingPaid
	if realized > 0 {
		e.metrics.WinningTrades++
		if realized > e.metrics.LargestWin {
			e.metrics.LargestWin = realized
		}
	} else {
		e.metrics.LosingTrades++
		if realized < e.metrics.LargestLoss {
			e.metrics.LargestLoss = realized
		}
	}
	e.metrics.WinRate = float64(e.metrics.WinningTrades) / float64(e.metrics.TotalTrades)
	e.metrics.CurrentBalance = e.currentBalance

	if e.currentBalance > e.peakBalance {
		e.peakBalance = e.currentBalance
	} else if e.peakBalance > 0 {
		drawdown := (e.peakBalance - e.currentBalance) / e.peakBalance
		if drawdown > e.metrics.MaxDrawdown {
			e.metrics.MaxDrawdown = drawdown
		}
	}

	delete(e.positions, id)
	e.history = append(e.history, p)

	logger.WithFields(logger.Fields{
		"id":       id,
		"side":     p.Side,
		"entry":    p.EntryPrice,
		"exit":     price,
		"realized": realized,
		"reason":   reason,
		"balance":  e.currentBalance,
	}).Info("Closed position")

	return p
}

// Apply turns an aggregated decision into position changes for the symbol:
// one position per symbol at a time, an opposite-direction decision closes
// the current one first. Hold and sub-threshold decisions do nothing.
// Returns the position closed by a signal flip and the one opened, if any.
func (e *Engine) Apply(decision model.AggregatedDecision, symbol string, price float64) (flipped *model.Position, opened *model.Position) {
	if decision.Action == model.ActionHold || decision.Confidence < e.cfg.ActionThreshold {
		return nil, nil
	}

	side := model.SideLong
	if decision.Action == model.ActionShort {
		side = model.SideShort
	}

	if current, ok := e.openPositionFor(symbol); ok {
		if current.Side == side {
			return nil, nil
		}
		closed := e.Close(current.ID, price, CloseReasonSignalFlip)
		flipped = &closed
	}

	p, err := e.Open(symbol, side, price)
	if err != nil {
		logger.WithError(err).Warn("Skipping signal, cannot open position")
		return flipped, nil
	}
	return flipped, &p
}

func (e *Engine) openPositionFor(symbol string) (model.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return model.Position{}, false
}

// Summary is the read-side portfolio projection.
type Summary struct {
	Balance       float64 `json:"balance"`
	TotalPnl      float64 `json:"total_pnl"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	TotalValue    float64 `json:"total_value"`
	OpenPositions int     `json:"open_positions"`
	TotalTrades   int     `json:"total_trades"`
	WinRate       float64 `json:"win_rate"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	TotalFees     float64 `json:"total_fees"`
	ROI           float64 `json:"roi"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	unrealized := 0.0
	for _, p := range e.positions {
		unrealized += p.UnrealizedPnl
	}

	roi := 0.0
	if e.startingBalance > 0 {
		roi = (e.currentBalance - e.startingBalance) / e.startingBalance * 100
	}

	return Summary{
		Balance:       e.currentBalance,
		TotalPnl:      e.metrics.TotalPnl,
		UnrealizedPnl: unrealized,
		TotalValue:    e.currentBalance + unrealized,
		OpenPositions: len(e.positions),
		TotalTrades:   e.metrics.TotalTrades,
		WinRate:       e.metrics.WinRate * 100,
		LargestWin:    e.metrics.LargestWin,
		LargestLoss:   e.metrics.LargestLoss,
		TotalFees:     e.metrics.TotalFees,
		ROI:           roi,
		MaxDrawdown:   e.metrics.MaxDrawdown,
	}
}

// OpenPositions returns a copy of every open position.
func (e *Engine) OpenPositions() []model.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out
}

// RecentTrades returns the last n closed trades, newest last.
func (e *Engine) RecentTrades(n int) []model.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	out := make([]model.Position, n)
	copy(out, e.history[len(e.history)-n:])
	return out
}

// TradeHistory returns a copy of the full closed-trade ledger.
func (e *Engine) TradeHistory() []model.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Position, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) Metrics() model.PortfolioMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

// Snapshot produces the persisted simulation document.
func (e *Engine) Snapshot() *store.State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	positions := make(map[string]model.Position, len(e.positions))
	for id, p := range e.positions {
		positions[id] = p
	}
	history := make([]model.Position, len(e.history))
	copy(history, e.history)

	return &store.State{
		StartingBalance: e.startingBalance,
		CurrentBalance:  e.currentBalance,
		Positions:       positions,
		TradeHistory:    history,
		Metrics:         e.metrics,
	}
}
