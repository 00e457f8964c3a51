package gateway

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StatusPort string `envconfig:"GATEWAY_STATUS_PORT" default:"8091"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
