// Package httpserver exposes the session and the domain store as a local
// JSON view surface. It listens on loopback by default and never talks to the
// rewards backend directly: every request goes through the session manager or
// the domain store.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/wastepoints/internal/adapter/metrics"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/platform/config"
	"github.com/pscheid92/wastepoints/internal/session"
	"github.com/pscheid92/wastepoints/internal/waste"
)

type sessionService interface {
	Snapshot() session.Snapshot
	TokenExpiry() (time.Duration, bool)
	Login(ctx context.Context, username, password string) apperrors.Result
	Signup(ctx context.Context, username, email, password string) session.SignupResult
	Logout(ctx context.Context)
}

type storeService interface {
	Submit(ctx context.Context, wasteType domain.WasteType, weightKg float64) waste.SubmitResult
	LoadSubmissions(ctx context.Context) apperrors.Result
	Submissions() []domain.WasteSubmission
	RefreshStats(ctx context.Context) apperrors.Result
	RefreshLeaderboard(ctx context.Context) apperrors.Result
	Leaderboard() []domain.LeaderboardEntry
	LeaderboardAge() (time.Duration, bool)
	CurrentRank() (int, bool)
	Summary() (waste.Summary, bool)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	session sessionService
	store   storeService

	registry     *prometheus.Registry
	viewMetrics  *metrics.ViewMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, sess sessionService, store storeService, registry *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		session:      sess,
		store:        store,
		registry:     registry,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}
	if registry != nil {
		srv.viewMetrics = metrics.NewViewMetrics(registry)
	}

	srv.registerRoutes()

	return srv
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	slog.Info("Starting view server", "addr", s.config.ListenAddr)
	if err := s.echo.Start(s.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
