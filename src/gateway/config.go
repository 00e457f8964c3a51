package gateway

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Image          string        `envconfig:"GATEWAY_IMAGE" default:"ghcr.io/gnzsnz/ib-gateway:vnc"`
	Network        string        `envconfig:"DOCKER_NETWORK" default:"selftrading_default"`
	SettingsVolume string        `envconfig:"GATEWAY_SETTINGS_VOLUME" default:"ib_settings"`
	SettingsMount  string        `envconfig:"GATEWAY_SETTINGS_MOUNT" default:"/home/ibgateway/tws_settings"`
	APIPort        int           `envconfig:"GATEWAY_API_PORT" default:"4004"`
	TradingMode    string        `envconfig:"GATEWAY_TRADING_MODE" default:"paper"`
	TimeZone       string        `envconfig:"GATEWAY_TIME_ZONE" default:"Asia/Jerusalem"`
	CheckInterval  time.Duration `envconfig:"GATEWAY_CHECK_INTERVAL" default:"30s"`
	ProbeTries     int           `envconfig:"GATEWAY_PROBE_TRIES" default:"60"`
	ProbeDelay     time.Duration `envconfig:"GATEWAY_PROBE_DELAY" default:"2s"`
	ProbeTimeout   time.Duration `envconfig:"GATEWAY_PROBE_TIMEOUT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
