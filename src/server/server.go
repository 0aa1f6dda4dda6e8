package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// Server exposes the supervisor control plane: health, worker status, stop
// requests and a websocket log tail.
type Server struct {
	sup     supervisor
	logs    logTailer
	logPoll time.Duration
}

func New(sup supervisor, logs logTailer) *Server {
	return &Server{sup: sup, logs: logs, logPoll: 2 * time.Second}
}

// WithLogPoll overrides the log tail poll interval.
func (s *Server) WithLogPoll(poll time.Duration) *Server {
	s.logPoll = poll
	return s
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("healthcheck write failed")
		}
	})

	r.Get("/status", StatusHandler(s.sup))
	r.Post("/process/close", CloseProcessHandler(s.sup))
	r.Post("/process/close-all", CloseAllProcessHandler(s.sup))
	r.Get("/logs/stream", LogStreamHandler(s.logs, s.logPoll))

	return r
}

// Start runs the HTTP server until the context is canceled, then shuts it
// down gracefully.
func (s *Server) Start(ctx context.Context, port string) error {
	if port == "" {
		port = GetConfig().Port
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
