package scheduler

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"selftrading/src/database"
	"selftrading/src/dockerengine"
	"selftrading/src/gateway"
	"selftrading/src/repository"
	"selftrading/src/scheduler"
	"selftrading/src/server"
)

type Scheduler struct{}

func (s *Scheduler) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	engine, err := dockerengine.NewClient(dockerengine.GetConfig())
	if err != nil {
		logrus.WithError(err).Error("Failed to build container engine client")
		return err
	}

	srv := server.StartStatusServer(config.StatusPort)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Status server shutdown error")
		}
	}()

	// Container liveness checks go through the same lifecycle manager the
	// gateway command uses, so both loops agree on what "running" means.
	manager := gateway.NewManager(
		engine,
		repository.NewUserRepository(),
		gateway.NewSessionProber(),
	)

	runner := scheduler.NewRunner(
		repository.NewUserRepository(),
		repository.NewSnapshotRepository(),
		repository.NewPositionRepository(),
		repository.NewOrderRepository(),
		repository.NewTradeRepository(),
		manager.IsRunning,
	)
	runner.StartLoop(ctx)

	return nil
}
