package processor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WorkerTimeout int `envconfig:"PROCESSOR_WORKER_TIMEOUT" default:"60"`
	RestartPause  int `envconfig:"PROCESSOR_RESTART_PAUSE" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
