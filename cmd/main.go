package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"selftrading/cmd/gateway"
	"selftrading/cmd/scheduler"
)

var Version string

func setupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	setupLogger()

	app := cli.NewApp()
	app.Name = "Selftrading CMD"
	app.Usage = "The selftrading background services command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		gatewayCMD,
		schedulerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	gatewayCMD = cli.Command{
		Name:        "gateway",
		Usage:       "run the gateway lifecycle manager",
		Action:      gatewayAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Keep one broker-gateway container alive per credentialed user`,
	}
	schedulerCMD = cli.Command{
		Name:        "scheduler",
		Usage:       "run the reconciliation scheduler",
		Action:      schedulerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Synchronize account, position, order and fill state per user`,
	}
)

func gatewayAction(_ *cli.Context) error {
	logrus.Info("Starting gateway lifecycle manager CMD")

	g := &gateway.Gateway{}
	if err := g.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func schedulerAction(_ *cli.Context) error {
	logrus.Info("Starting reconciliation scheduler CMD")

	s := &scheduler.Scheduler{}
	if err := s.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}
