package scheduler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod       time.Duration `envconfig:"LOOP_PERIOD" default:"60s"`
	SessionPort      int           `envconfig:"GATEWAY_API_PORT" default:"4004"`
	PlaceTestOrders  bool          `envconfig:"PLACE_TEST_ORDERS" default:"false"`
	TestOrderSymbols []string      `envconfig:"TEST_ORDER_SYMBOLS" default:"AAPL,NVDA,TSLA,PLTR"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
