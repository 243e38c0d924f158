package signals

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DecisionThreshold float64 `envconfig:"SIGNAL_DECISION_THRESHOLD" default:"0.75"`
	AdaptEvery        int     `envconfig:"SIGNAL_ADAPT_EVERY" default:"20"`
	AccuracyWindow    int     `envconfig:"SIGNAL_ACCURACY_WINDOW" default:"20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
