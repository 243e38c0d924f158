package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// PostgresDSN switches the trade archive to postgres when set; the
	// default is a local sqlite file next to the simulation state.
	PostgresDSN  string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"data/trades.db"`
	GormLogLevel int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
