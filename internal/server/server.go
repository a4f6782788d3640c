package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fitundfun/ffbackup/internal/config"
	"github.com/fitundfun/ffbackup/internal/metrics"
	"github.com/fitundfun/ffbackup/internal/restore"
)

// Service is what the admin API needs from the application.
type Service interface {
	Export(ctx context.Context, createdBy string) ([]byte, string, error)
	Import(ctx context.Context, data []byte, opts restore.Options) (*restore.Report, error)
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      config.ServerConfig
	svc      Service
	log      zerolog.Logger
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	limiter  *RateLimiter
	secret   []byte
	now      func() time.Time
}

func New(cfg config.ServerConfig, svc Service, log zerolog.Logger, m *metrics.Collector, gatherer prometheus.Gatherer) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("server.jwt_secret is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 512 << 20
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      cfg,
		svc:      svc,
		log:      log,
		metrics:  m,
		gatherer: gatherer,
		limiter:  NewRateLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests),
		secret:   []byte(cfg.JWTSecret),
		now:      time.Now,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.rateLimit, s.authenticate, s.requireIntent)
	admin.HandleFunc("/backup", s.handleBackup).Methods(http.MethodGet)
	admin.HandleFunc("/restore", s.handleRestore).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.limiter.Run(sweepCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.cfg.Listen).Msg("admin api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info().Msg("shutting down admin api")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
