package pricefeed

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbol         string        `envconfig:"PRICE_SYMBOL" default:"ETH"`
	CallTimeout    time.Duration `envconfig:"PRICE_CALL_TIMEOUT" default:"5s"`
	MaxRetries     int           `envconfig:"PRICE_MAX_RETRIES" default:"2"`
	RetryBackoff   time.Duration `envconfig:"PRICE_RETRY_BACKOFF" default:"400ms"`
	CachePath      string        `envconfig:"PRICE_CACHE_PATH" default:"data/last_price.json"`
	DefaultPrice   float64       `envconfig:"PRICE_DEFAULT" default:"3000"`
	StreamMaxAge   time.Duration `envconfig:"PRICE_STREAM_MAX_AGE" default:"30s"`
	PerpMarketURL  string        `envconfig:"PRICE_PERP_MARKET_URL" default:"https://dlob.drift.trade"`
	PerpMarketIdx  int           `envconfig:"PRICE_PERP_MARKET_INDEX" default:"2"`
	SpotAPIBaseURL string        `envconfig:"PRICE_SPOT_API_URL" default:"https://price.jup.ag"`
	IndexAPIURL    string        `envconfig:"PRICE_INDEX_API_URL" default:"https://api.coingecko.com/api/v3"`
	StreamURL      string        `envconfig:"PRICE_STREAM_URL" default:"wss://stream.binance.com:9443/ws/ethusdt@miniTicker"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
