package marketdata

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	logger "github.com/sirupsen/logrus"

	"perpsim/src/indicators"
	"perpsim/src/model"
)

// Neutral defaults used when a data source is unavailable. The cycle must
// always complete with a usable snapshot.
const (
	defaultFundingRate = 0.0
	defaultVolume24h   = 1_000_000.0
	defaultFearGreed   = 50.0
)

// Builder assembles one immutable MarketSnapshot per cycle from the kline
// history, derivative market data and the fear/greed index. Every source
// failure degrades to a neutral default and is logged, never propagated.
type Builder struct {
	cfg      Config
	exchange goex.API
	futures  *resty.Client
	fng      *resty.Client
	now      func() time.Time
}

func NewBuilder(cfg Config) *Builder {
	// goex takes no context, so the client timeout is the only bound on the
	// kline fetch.
	apiConfig := &goex.APIConfig{
		HttpClient: &http.Client{Timeout: cfg.CallTimeout},
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}

	return &Builder{
		cfg:      cfg,
		exchange: binance.NewWithConfig(apiConfig),
		futures: resty.New().
			SetBaseURL(cfg.FuturesAPIURL).
			SetTimeout(cfg.CallTimeout).
			SetHeader("Accept", "application/json"),
		fng: resty.New().
			SetBaseURL(cfg.SentimentAPIURL).
			SetTimeout(cfg.CallTimeout).
			SetHeader("Accept", "application/json"),
		now: time.Now,
	}
}

// Build produces the snapshot for the cycle. The reference price comes from
// the price aggregator and is authoritative; history-derived indicators fall
// back to neutral values when the kline fetch fails.
func (b *Builder) Build(ctx context.Context, symbol string, price float64) model.MarketSnapshot {
	closes := b.fetchCloses(symbol)

	snap := model.MarketSnapshot{
		Symbol:         symbol,
		Price:          price,
		FundingRate:    b.fetchFundingRate(ctx, symbol),
		Volume24h:      b.fetchVolume24h(ctx, symbol),
		FearGreedIndex: b.fetchFearGreedIndex(ctx),
		Timestamp:      b.now().UTC(),
	}

	if len(closes) == 0 {
		snap.RSI = 50.0
		snap.EMAFast = price
		snap.EMASlow = price
		snap.BBUpper = price
		snap.BBMiddle = price
		snap.BBLower = price
		return snap
	}

	snap.RSI = indicators.RSI(closes, 14)
	snap.EMAFast = indicators.EMA(closes, 12)
	snap.EMASlow = indicators.EMA(closes, 26)
	snap.BBUpper, snap.BBMiddle, snap.BBLower = indicators.BollingerBands(closes, 20, 2)

	if len(closes) >= 2 {
		prev := closes[len(closes)-2]
		if prev > 0 {
			snap.PriceChange1h = (closes[len(closes)-1] - prev) / prev
		}
	}
	if len(closes) >= 25 {
		prev := closes[len(closes)-25]
		if prev > 0 {
			snap.PriceChange24h = (closes[len(closes)-1] - prev) / prev
		}
	}

	return snap
}

func (b *Builder) fetchCloses(symbol string) []float64 {
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: b.cfg.Quote})

	klines, err := b.exchange.GetKlineRecords(pair, goex.KLINE_PERIOD_1H, b.cfg.KlineLimit)
	if err != nil {
		logger.WithError(err).Warn("Failed to fetch kline history, indicators will be neutral")
		return nil
	}

	closes := make([]float64, 0, len(klines))
	for i := range klines {
		if klines[i].Close > 0 {
			closes = append(closes, klines[i].Close)
		}
	}
	return closes
}

type premiumIndexResponse struct {
	LastFundingRate string `json:"lastFundingRate"`
}

func (b *Builder) fetchFundingRate(ctx context.Context, symbol string) float64 {
	var out premiumIndexResponse
	resp, err := b.futures.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol+b.cfg.Quote).
		SetResult(&out).
		Get("/premiumIndex")
	if err != nil || resp.StatusCode() != http.StatusOK {
		logger.WithError(err).Debug("Failed to fetch funding rate, using neutral default")
		return defaultFundingRate
	}

	rate, err := strconv.ParseFloat(out.LastFundingRate, 64)
	if err != nil {
		return defaultFundingRate
	}
	return rate
}

type ticker24hResponse struct {
	QuoteVolume string `json:"quoteVolume"`
}

func (b *Builder) fetchVolume24h(ctx context.Context, symbol string) float64 {
	var out ticker24hResponse
	resp, err := b.futures.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol+b.cfg.Quote).
		SetResult(&out).
		Get("/ticker/24hr")
	if err != nil || resp.StatusCode() != http.StatusOK {
		logger.WithError(err).Debug("Failed to fetch 24h volume, using default")
		return defaultVolume24h
	}

	vol, err := strconv.ParseFloat(out.QuoteVolume, 64)
	if err != nil || vol <= 0 {
		return defaultVolume24h
	}
	return vol
}

type fearGreedResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

func (b *Builder) fetchFearGreedIndex(ctx context.Context) float64 {
	var out fearGreedResponse
	resp, err := b.fng.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/fng/")
	if err != nil || resp.StatusCode() != http.StatusOK || len(out.Data) == 0 {
		logger.WithError(err).Debug("Failed to fetch fear/greed index, using neutral default")
		return defaultFearGreed
	}

	v, err := strconv.ParseFloat(out.Data[0].Value, 64)
	if err != nil {
		return defaultFearGreed
	}
	return v
}
