package gateway

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
	"selftrading/src/server"
)

type Gateway struct{}

func (g *Gateway) Start() error {
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

	manager := gateway.NewManager(
		engine,
		repository.NewUserRepository(),
		gateway.NewSessionProber(),
	)
	manager.RunLoop(ctx)

	return nil
}
