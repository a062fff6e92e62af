package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/internal/web"
)

// Server hosts the replay control API
type Server struct {
	config  *config.WebConfig
	logger  logger.Logger
	web     *web.Service
	router  *mux.Router
	httpSrv *http.Server
}

// New creates a new server instance
func New(cfg *config.WebConfig, log logger.Logger, svc *web.Service) *Server {
	router := mux.NewRouter()
	router.Use(accessLog(log))
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	svc.RegisterRoutes(router)

	return &Server{
		config: cfg,
		logger: log,
		web:    svc,
		router: router,
		httpSrv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpSrv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting control API",
		"addr", ln.Addr().String(),
		"admin_path", s.config.AdminPath,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down control API...")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// websocket connections are hijacked and not tracked by Shutdown
	s.web.Close()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Control API forced to shutdown", "error", err)
		return err
	}
	s.logger.Info("Control API exited")
	return nil
}
