package history

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartDt  time.Time `envconfig:"HISTORY_START_DATE" default:"2026-01-01T00:00:00Z"`
	EndDt    time.Time `envconfig:"HISTORY_END_DATE" default:"2027-01-01T00:00:00Z"`
	AutoMode bool      `envconfig:"HISTORY_AUTO_MODE" default:"true"`
	Limit    int       `envconfig:"HISTORY_LIMIT" default:"1000"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
