package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	State         string              `json:"state"`
	Authenticated bool                `json:"authenticated"`
	Profile       *domain.UserProfile `json:"profile,omitempty"`
	Version       uint64              `json:"version"`
	// TokenExpiresIn is in seconds and absent for opaque tokens.
	TokenExpiresIn *float64 `json:"tokenExpiresIn,omitempty"`
}

type signupResponse struct {
	AccountCreated bool            `json:"accountCreated"`
	Session        sessionResponse `json:"session"`
}

func (s *Server) registerSessionRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/api/session", s.handleSession)
	s.echo.POST("/api/login", s.handleLogin, rateLimiter)
	s.echo.POST("/api/signup", s.handleSignup, rateLimiter)
	s.echo.POST("/api/logout", s.handleLogout)
}

func (s *Server) sessionView() sessionResponse {
	snap := s.session.Snapshot()
	resp := sessionResponse{
		State:         snap.State.String(),
		Authenticated: snap.Authenticated(),
		Profile:       snap.Profile,
		Version:       snap.Version,
	}
	if snap.Authenticated() {
		if left, ok := s.session.TokenExpiry(); ok {
			secs := left.Seconds()
			resp.TokenExpiresIn = &secs
		}
	}
	return resp
}

func (s *Server) handleSession(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.sessionView()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.FieldFailure(apperrors.NonFieldKey, "Request body must be JSON.")
	}

	res := s.session.Login(c.Request().Context(), req.Username, req.Password)
	if err := failure(res); err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, s.sessionView()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSignup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.FieldFailure(apperrors.NonFieldKey, "Request body must be JSON.")
	}

	res := s.session.Signup(c.Request().Context(), req.Username, req.Email, req.Password)
	return s.writeSignup(c, res)
}

// writeSignup answers 201 whenever the account exists, even when the
// follow-up login failed; the view then asks the user to log in.
func (s *Server) writeSignup(c echo.Context, res session.SignupResult) error {
	if !res.AccountCreated {
		return failure(res.Result)
	}
	resp := signupResponse{AccountCreated: true, Session: s.sessionView()}
	if err := c.JSON(http.StatusCreated, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	s.session.Logout(c.Request().Context())
	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}
