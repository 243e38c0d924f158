package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbol          string        `envconfig:"MARKET_SYMBOL" default:"ETH"`
	Quote           string        `envconfig:"MARKET_QUOTE" default:"USDT"`
	KlineLimit      int           `envconfig:"MARKET_KLINE_LIMIT" default:"100"`
	CallTimeout     time.Duration `envconfig:"MARKET_CALL_TIMEOUT" default:"5s"`
	FuturesAPIURL   string        `envconfig:"MARKET_FUTURES_API_URL" default:"https://fapi.binance.com/fapi/v1"`
	SentimentAPIURL string        `envconfig:"MARKET_SENTIMENT_API_URL" default:"https://api.alternative.me"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
