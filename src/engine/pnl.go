package engine

import (
	"github.com/shopspring/decimal"

	"perpsim/src/model"
)

// directionalPnl computes (priceDiff / entry) × size × entry × leverage. The
// entry-price normalization cancels algebraically, so the computation reduces
// to priceDiff × size × leverage with no division, keeping long and short
// results exactly symmetric.
func directionalPnl(side string, entry, exit, size, leverage float64) float64 {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)

	diff := x.Sub(e)
	if side == model.SideShort {
		diff = e.Sub(x)
	}

	pnl, _ := diff.
		Mul(decimal.NewFromFloat(size)).
		Mul(decimal.NewFromFloat(leverage)).
		Float64()
	return pnl
}
