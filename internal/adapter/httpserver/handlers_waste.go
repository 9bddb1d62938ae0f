package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
)

type submitRequest struct {
	WasteType string  `json:"wasteType"`
	WeightKg  float64 `json:"weightKg"`
}

type leaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
	Rank    *int                      `json:"rank"`
	// AgeSeconds is how long ago the entries were fetched.
	AgeSeconds float64 `json:"ageSeconds"`
}

func (s *Server) registerWasteRoutes() {
	s.echo.GET("/api/dashboard", s.handleDashboard, s.requireAuth)
	s.echo.GET("/api/submissions", s.handleListSubmissions, s.requireAuth)
	s.echo.POST("/api/submissions", s.handleSubmit, s.requireAuth)
	s.echo.GET("/api/leaderboard", s.handleLeaderboard, s.requireAuth)
}

// handleDashboard refreshes the user's totals on every load, like mounting
// the dashboard view does.
func (s *Server) handleDashboard(c echo.Context) error {
	if err := failure(s.store.RefreshStats(c.Request().Context())); err != nil {
		return err
	}

	summary, ok := s.store.Summary()
	if !ok {
		return apperrors.AuthorizationFailure("not signed in")
	}
	if err := c.JSON(http.StatusOK, summary); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListSubmissions(c echo.Context) error {
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh || len(s.store.Submissions()) == 0 {
		if err := failure(s.store.LoadSubmissions(c.Request().Context())); err != nil {
			return err
		}
	}

	if err := c.JSON(http.StatusOK, s.store.Submissions()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.FieldFailure(apperrors.NonFieldKey, "Request body must be JSON.")
	}

	wasteType, err := domain.ParseWasteType(req.WasteType)
	if err != nil {
		return apperrors.FieldFailure("waste_type", "Unknown waste type.")
	}

	res := s.store.Submit(c.Request().Context(), wasteType, req.WeightKg)
	if err := failure(res.Result); err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, res.Submission); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleLeaderboard serves the cached ranking and only goes to the backend
// on first load or when ?refresh=true is given.
func (s *Server) handleLeaderboard(c echo.Context) error {
	refresh, _ := strconv.ParseBool(c.QueryParam("refresh"))
	if _, loaded := s.store.LeaderboardAge(); refresh || !loaded {
		if err := failure(s.store.RefreshLeaderboard(c.Request().Context())); err != nil {
			return err
		}
	}

	resp := leaderboardResponse{Entries: s.store.Leaderboard()}
	if rank, ok := s.store.CurrentRank(); ok {
		resp.Rank = &rank
	}
	if age, ok := s.store.LeaderboardAge(); ok {
		resp.AgeSeconds = age.Seconds()
	}
	if resp.Entries == nil {
		resp.Entries = []domain.LeaderboardEntry{}
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
