package pricefeed

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"perpsim/src/store"
)

// Backoff between retry attempts grows by this factor per attempt.
const backoffMultiplier = 1.8

// Aggregator produces one robust reference price per cycle. GetPrice never
// fails: it degrades through candidates -> persisted last-good price ->
// configured default.
type Aggregator struct {
	cfg       Config
	providers []Provider
	sleep     func(time.Duration)

	mu       sync.Mutex
	lastGood float64
}

// NewAggregator wires the aggregator over an ordered provider list. The
// last-good price survives restarts through the cache file.
func NewAggregator(cfg Config, providers ...Provider) *Aggregator {
	a := &Aggregator{
		cfg:       cfg,
		providers: providers,
		sleep:     time.Sleep,
	}
	if cache, ok := store.LoadLastPrice(cfg.CachePath); ok {
		a.lastGood = cache.Price
		logger.WithField("price", cache.Price).Info("Recovered last good price from cache")
	}
	return a
}

// DefaultProviders builds the standard source list in preference order:
// perp mark price, spot aggregator, exchange ticker, index price.
func DefaultProviders(cfg Config) []Provider {
	return []Provider{
		NewPerpMarkProvider(cfg.PerpMarketURL, cfg.PerpMarketIdx, cfg.CallTimeout),
		NewSpotAggregatorProvider(cfg.SpotAPIBaseURL, cfg.CallTimeout),
		NewExchangeTickerProvider(&http.Client{Timeout: cfg.CallTimeout}),
		NewIndexPriceProvider(cfg.IndexAPIURL, cfg.CallTimeout),
	}
}

// GetPrice returns a robust price for the symbol. Provider failures are
// swallowed and logged; the only observable degradation is falling back to
// the stale cached price or the hardcoded default.
func (a *Aggregator) GetPrice(ctx context.Context, symbol string) float64 {
	candidates := a.gatherCandidates(ctx, symbol)

	if len(candidates) > 0 {
		price := median(candidates)

		a.mu.Lock()
		a.lastGood = price
		a.mu.Unlock()

		if err := store.SaveLastPrice(a.cfg.CachePath, price); err != nil {
			logger.WithError(err).Warn("Failed to persist last good price")
		}

		logger.WithFields(logger.Fields{
			"symbol":     symbol,
			"price":      price,
			"candidates": len(candidates),
		}).Debug("Aggregated price from providers")
		return price
	}

	a.mu.Lock()
	lastGood := a.lastGood
	a.mu.Unlock()

	if lastGood > 0 {
		logger.WithFields(logger.Fields{
			"symbol": symbol,
			"price":  lastGood,
		}).Warn("All price providers unavailable, using last known price")
		return lastGood
	}

	logger.WithFields(logger.Fields{
		"symbol": symbol,
		"price":  a.cfg.DefaultPrice,
	}).Warn("No price data available, using fallback default price")
	return a.cfg.DefaultPrice
}

// gatherCandidates fans out to all providers concurrently so cycle latency is
// bounded by the slowest allowed timeout, not the sum of them.
func (a *Aggregator) gatherCandidates(ctx context.Context, symbol string) []float64 {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		prices []float64
	)

	for _, p := range a.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			price, ok := a.fetchWithRetries(ctx, p, symbol)
			if !ok {
				return
			}
			mu.Lock()
			prices = append(prices, price)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return prices
}

func (a *Aggregator) fetchWithRetries(ctx context.Context, p Provider, symbol string) (float64, bool) {
	delay := a.cfg.RetryBackoff

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		price, err := a.fetchOnce(ctx, p, symbol)

		if err == nil && price > 0 {
			return price, true
		}

		logger.WithFields(logger.Fields{
			"provider": p.Name(),
			"attempt":  attempt + 1,
		}).WithError(err).Debug("Price provider attempt failed")

		if attempt < a.cfg.MaxRetries {
			a.sleep(delay)
			delay = time.Duration(float64(delay) * backoffMultiplier)
		}
	}

	logger.WithField("provider", p.Name()).Warn("Price provider exhausted retries")
	return 0, false
}

// fetchOnce bounds a single provider call by CallTimeout even when the
// provider ignores its context (the exchange SDK takes none). An abandoned
// call keeps running in the background until its own HTTP client timeout
// fires; the cycle does not wait for it.
func (a *Aggregator) fetchOnce(ctx context.Context, p Provider, symbol string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	type result struct {
		price float64
		err   error
	}
	done := make(chan result, 1)

	go func() {
		price, err := p.FetchPrice(callCtx, symbol)
		done <- result{price: price, err: err}
	}()

	select {
	case r := <-done:
		return r.price, r.err
	case <-callCtx.Done():
		return 0, callCtx.Err()
	}
}

// median is used instead of the mean to resist single-outlier provider
// glitches. For an even count it averages the two middle values.
func median(prices []float64) float64 {
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}
