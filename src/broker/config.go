package broker

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ConnectTries   int           `envconfig:"IB_CONNECT_TRIES" default:"60"`
	ConnectDelay   time.Duration `envconfig:"IB_CONNECT_DELAY" default:"2s"`
	ConnectTimeout time.Duration `envconfig:"IB_CONNECT_TIMEOUT" default:"6s"`
	DNSTries       int           `envconfig:"IB_DNS_TRIES" default:"30"`
	DNSDelay       time.Duration `envconfig:"IB_DNS_DELAY" default:"1s"`
	PermIDTries    int           `envconfig:"IB_PERM_ID_TRIES" default:"50"`
	PermIDDelay    time.Duration `envconfig:"IB_PERM_ID_DELAY" default:"100ms"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
