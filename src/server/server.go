package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// StartStatusServer exposes the healthcheck endpoint in the background.
// Both loops are observable primarily through logs; this only gives the
// orchestrator something to probe.
func StartStatusServer(port string) *http.Server {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write failed")
		}
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Status server crashed")
		}
	}()

	return srv
}
