package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TargetSymbol string        `envconfig:"TARGET_SYMBOL" default:"ETH"`
	LoopPeriod   time.Duration `envconfig:"LOOP_PERIOD" default:"60s"`
	StatePath    string        `envconfig:"STATE_PATH" default:"data/simulation_data.json"`
	ModelPath    string        `envconfig:"MODEL_PATH" default:"data/model.json"`
	ModelSeed    int64         `envconfig:"MODEL_SEED" default:"0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
