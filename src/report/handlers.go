package report

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/engine"
	"perpsim/src/model"
	"perpsim/src/repository"
)

// Portfolio is the read-side view the handlers project. The position engine
// satisfies it; handlers never mutate through it.
type Portfolio interface {
	Summary() engine.Summary
	OpenPositions() []model.Position
}

type tradeSearcher interface {
	Recent(ctx context.Context, limit int) ([]model.TradeRecord, error)
	Search(ctx context.Context, opts repository.TradeSearchOptions) ([]model.TradeRecord, error)
}

// SummaryHandler returns the portfolio summary projection.
func SummaryHandler(portfolio Portfolio) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, portfolio.Summary())
	}
}

// PositionsHandler returns every open position.
func PositionsHandler(portfolio Portfolio) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions := portfolio.OpenPositions()
		if positions == nil {
			positions = []model.Position{}
		}
		writeJSON(w, positions)
	}
}

// TradesHandler lists archived closed trades. Supports limit, symbol, side
// and a closedFrom/closedTo RFC3339 window.
func TradesHandler(repo tradeSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		limit := 20
		if limitParam := query.Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		var opts repository.TradeSearchOptions
		filtered := false

		if symbolParam := query.Get("symbol"); symbolParam != "" {
			opts.Symbol = &symbolParam
			filtered = true
		}
		if sideParam := query.Get("side"); sideParam != "" {
			if sideParam != model.SideLong && sideParam != model.SideShort {
				http.Error(w, "invalid side", http.StatusBadRequest)
				return
			}
			opts.Side = &sideParam
			filtered = true
		}
		if fromParam := query.Get("closedFrom"); fromParam != "" {
			parsed, err := time.Parse(time.RFC3339, fromParam)
			if err != nil {
				http.Error(w, "invalid closedFrom", http.StatusBadRequest)
				return
			}
			opts.ClosedAfter = &parsed
			filtered = true
		}
		if toParam := query.Get("closedTo"); toParam != "" {
			parsed, err := time.Parse(time.RFC3339, toParam)
			if err != nil {
				http.Error(w, "invalid closedTo", http.StatusBadRequest)
				return
			}
			opts.ClosedBefore = &parsed
			filtered = true
		}

		var (
			records []model.TradeRecord
			err     error
		)
		if filtered {
			records, err = repo.Search(r.Context(), opts)
			if err == nil && len(records) > limit {
				records = records[:limit]
			}
		} else {
			records, err = repo.Recent(r.Context(), limit)
		}
		if err != nil {
			http.Error(w, "failed to list trades", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []model.TradeRecord{}
		}
		writeJSON(w, records)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}
