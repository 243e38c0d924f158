package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
)

// Provider is one independent source of a reference price. Any subset of
// providers may fail in a cycle; the aggregator tolerates it.
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// ETH (Wormhole) mint on Solana, used by the spot price API.
const ethMint = "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs"

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// ----- perp mark price (primary source) -----

type perpMarkResponse struct {
	Market struct {
		MarkPrice float64 `json:"markPrice"`
	} `json:"market"`
}

// PerpMarkProvider fetches the perp market mark price from the dlob API.
// Prices are fixed-point with 6 decimals.
type PerpMarkProvider struct {
	http        *resty.Client
	marketIndex int
}

func NewPerpMarkProvider(baseURL string, marketIndex int, timeout time.Duration) *PerpMarkProvider {
	return &PerpMarkProvider{
		http:        newRestyClient(baseURL, timeout),
		marketIndex: marketIndex,
	}
}

func (p *PerpMarkProvider) Name() string { return "perp_mark" }

func (p *PerpMarkProvider) FetchPrice(ctx context.Context, _ string) (float64, error) {
	var out perpMarkResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/markets/perp/%d", p.marketIndex))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("perp market API returned HTTP %d", resp.StatusCode())
	}

	price := out.Market.MarkPrice / 1e6
	if price <= 0 {
		return 0, fmt.Errorf("perp market API returned non-positive mark price %f", price)
	}
	return price, nil
}

// ----- spot aggregator -----

type spotPriceResponse struct {
	Data map[string]struct {
		Price float64 `json:"price"`
	} `json:"data"`
}

// SpotAggregatorProvider fetches the spot price from the Jupiter price API.
type SpotAggregatorProvider struct {
	http *resty.Client
	mint string
}

func NewSpotAggregatorProvider(baseURL string, timeout time.Duration) *SpotAggregatorProvider {
	return &SpotAggregatorProvider{
		http: newRestyClient(baseURL, timeout),
		mint: ethMint,
	}
}

func (p *SpotAggregatorProvider) Name() string { return "spot_aggregator" }

func (p *SpotAggregatorProvider) FetchPrice(ctx context.Context, _ string) (float64, error) {
	var out spotPriceResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("ids", p.mint).
		SetResult(&out).
		Get("/v4/price")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("spot price API returned HTTP %d", resp.StatusCode())
	}

	entry, ok := out.Data[p.mint]
	if !ok || entry.Price <= 0 {
		return 0, fmt.Errorf("spot price API returned no usable price for %s", p.mint)
	}
	return entry.Price, nil
}

// ----- exchange spot ticker via goex -----

// ExchangeTickerProvider queries the Binance spot ticker through goex. The
// SDK takes no context, so the HTTP client's timeout is the only bound on
// the call and the client must always carry one.
type ExchangeTickerProvider struct {
	exchange goex.API
}

func NewExchangeTickerProvider(httpClient *http.Client) *ExchangeTickerProvider {
	if httpClient == nil || httpClient.Timeout == 0 {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	apiConfig := &goex.APIConfig{
		HttpClient: httpClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &ExchangeTickerProvider{exchange: binance.NewWithConfig(apiConfig)}
}

func (p *ExchangeTickerProvider) Name() string { return "exchange_ticker" }

func (p *ExchangeTickerProvider) FetchPrice(_ context.Context, symbol string) (float64, error) {
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: "USDT"})
	ticker, err := p.exchange.GetTicker(pair)
	if err != nil {
		return 0, err
	}
	if ticker.Last <= 0 {
		return 0, fmt.Errorf("exchange ticker returned non-positive last price %f", ticker.Last)
	}
	return ticker.Last, nil
}

// ----- index price -----

type indexPriceResponse struct {
	Ethereum struct {
		USD float64 `json:"usd"`
	} `json:"ethereum"`
}

// IndexPriceProvider fetches the CoinGecko simple price as the final
// independent source.
type IndexPriceProvider struct {
	http *resty.Client
}

func NewIndexPriceProvider(baseURL string, timeout time.Duration) *IndexPriceProvider {
	return &IndexPriceProvider{http: newRestyClient(baseURL, timeout)}
}

func (p *IndexPriceProvider) Name() string { return "index_price" }

func (p *IndexPriceProvider) FetchPrice(ctx context.Context, _ string) (float64, error) {
	var out indexPriceResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ids": "ethereum", "vs_currencies": "usd"}).
		SetResult(&out).
		Get("/simple/price")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("index price API returned HTTP %d", resp.StatusCode())
	}

	if out.Ethereum.USD <= 0 {
		return 0, fmt.Errorf("index price API returned non-positive price %f", out.Ethereum.USD)
	}
	return out.Ethereum.USD, nil
}
