// Package backend is the typed client for the rewards REST API. It maps the
// snake_case wire format to domain types; transport, auth and failure
// classification are the gateway's job.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/gateway"
)

// Doer sends one gateway request.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

type Client struct {
	gw Doer
}

func NewClient(gw Doer) *Client {
	return &Client{gw: gw}
}

// ObtainToken exchanges a username and password for a token pair.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (domain.Credentials, error) {
	var pair tokenPair
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/token/",
		Body:      map[string]string{"username": username, "password": password},
		Anonymous: true,
	}, &pair)
	if err != nil {
		return domain.Credentials{}, err
	}
	if pair.Access == "" {
		return domain.Credentials{}, apperrors.UnknownFailure("token response without access token", nil)
	}
	return domain.Credentials{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}

func (c *Client) Signup(ctx context.Context, username, email, password string) error {
	return c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/signup/",
		Body:      signupRequest{Username: username, Email: email, Password: password},
		Anonymous: true,
	}, nil)
}

// Me fetches the profile of the session's user.
func (c *Client) Me(ctx context.Context) (domain.UserProfile, error) {
	return c.me(ctx, "")
}

// MeWithToken fetches the profile belonging to access, bypassing the session.
func (c *Client) MeWithToken(ctx context.Context, access string) (domain.UserProfile, error) {
	return c.me(ctx, access)
}

func (c *Client) me(ctx context.Context, access string) (domain.UserProfile, error) {
	var dto profileDTO
	if err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/me/", Token: access}, &dto); err != nil {
		return domain.UserProfile{}, err
	}
	profile, err := dto.toDomain()
	if err != nil {
		return domain.UserProfile{}, apperrors.UnknownFailure("malformed profile", err)
	}
	return profile, nil
}

func (c *Client) CreateSubmission(ctx context.Context, userID int64, wasteType domain.WasteType, weightKg float64, date time.Time) (domain.WasteSubmission, error) {
	body := submissionRequest{
		User:           userID,
		WasteType:      string(wasteType),
		WeightKg:       weightKg,
		SubmissionDate: date.Format(domain.SubmissionDateLayout),
	}

	var dto submissionDTO
	if err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/submissions/", Body: body}, &dto); err != nil {
		return domain.WasteSubmission{}, err
	}

	submission, err := dto.toDomain()
	if err != nil {
		return domain.WasteSubmission{}, apperrors.UnknownFailure("malformed submission", err)
	}
	// Older backends echo neither the owner nor the date.
	if submission.UserID == 0 {
		submission.UserID = userID
	}
	if submission.SubmissionDate.IsZero() {
		submission.SubmissionDate = date
	}
	return submission, nil
}

// Submissions lists the session user's submissions, most recent first.
func (c *Client) Submissions(ctx context.Context) ([]domain.WasteSubmission, error) {
	var dtos []submissionDTO
	if err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/submissions/"}, &dtos); err != nil {
		return nil, err
	}

	out := make([]domain.WasteSubmission, 0, len(dtos))
	for _, dto := range dtos {
		s, err := dto.toDomain()
		if err != nil {
			return nil, apperrors.UnknownFailure("malformed submission", err)
		}
		out = append(out, s)
	}
	sortRecentFirst(out)
	return out, nil
}

func (c *Client) Dashboard(ctx context.Context, userID int64) (domain.Stats, error) {
	var dto dashboardDTO
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/dashboard/%d/", userID),
		Route:  "/dashboard/:id/",
	}, &dto)
	if err != nil {
		return domain.Stats{}, err
	}
	return dto.toDomain(), nil
}

func (c *Client) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var dtos []leaderboardDTO
	if err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/leaderboard/"}, &dtos); err != nil {
		return nil, err
	}

	out := make([]domain.LeaderboardEntry, len(dtos))
	for i, dto := range dtos {
		out[i] = dto.toDomain(i)
	}
	return out, nil
}
