package engine

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartingBalance float64 `envconfig:"ENGINE_STARTING_BALANCE" default:"10000"`
	TradeSizeUSD    float64 `envconfig:"ENGINE_TRADE_SIZE_USD" default:"100"`
	Leverage        float64 `envconfig:"ENGINE_LEVERAGE" default:"1"`
	StopLossPct     float64 `envconfig:"ENGINE_STOP_LOSS_PCT" default:"0.02"`
	TakeProfitPct   float64 `envconfig:"ENGINE_TAKE_PROFIT_PCT" default:"0.04"`
	FeeRate         float64 `envconfig:"ENGINE_FEE_RATE" default:"0.001"`
	ActionThreshold float64 `envconfig:"ENGINE_ACTION_THRESHOLD" default:"0.75"`

	// MaxFundingRate bounds the simulated per-cycle funding draw.
	MaxFundingRate float64 `envconfig:"ENGINE_MAX_FUNDING_RATE" default:"0.001"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
