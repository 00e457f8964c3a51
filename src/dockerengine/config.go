package dockerengine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Host accepts unix:///path/to/docker.sock or tcp://host:port.
	Host       string        `envconfig:"DOCKER_HOST" default:"unix:///var/run/docker.sock"`
	APIVersion string        `envconfig:"DOCKER_API_VERSION" default:"v1.41"`
	Timeout    time.Duration `envconfig:"DOCKER_TIMEOUT" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
