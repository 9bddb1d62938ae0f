package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wastepoints/internal/adapter/metrics"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/platform/correlation"
	"github.com/pscheid92/wastepoints/internal/platform/version"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerDelay     = 30 * time.Second
	maxResponseBytes        = 1 << 20

	refreshPath = "/token/refresh/"
)

// CredentialSource is the session-owned token holder the gateway reads from
// and writes refreshed tokens to.
type CredentialSource interface {
	Credentials() domain.Credentials
	// Replace installs refreshed credentials obtained by exchanging
	// refreshToken. It fails when that token no longer identifies the session.
	Replace(ctx context.Context, refreshToken string, next domain.Credentials) error
	// Revoke ends the session because authorization cannot be recovered.
	// It is ignored when refreshToken no longer identifies the current session.
	Revoke(ctx context.Context, refreshToken string)
}

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	// Route is the low-cardinality endpoint label used for metrics. Defaults to Path.
	Route string
	// Body is JSON-encoded when non-nil.
	Body any
	// Anonymous requests carry no bearer and never trigger a refresh.
	Anonymous bool
	// Token pins an explicit bearer instead of the session's. Pinned requests
	// are not refreshed and never revoke the session.
	Token string
}

func (r Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

func (r Request) sessionBound() bool {
	return !r.Anonymous && r.Token == ""
}

type Options struct {
	BaseURL          string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Metrics          *metrics.GatewayMetrics
	Clock            clockwork.Clock
	BreakerThreshold uint
	BreakerDelay     time.Duration
}

type Gateway struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	creds   CredentialSource
	metrics *metrics.GatewayMetrics
	clock   clockwork.Clock
	breaker circuitbreaker.CircuitBreaker[any]

	refreshGroup singleflight.Group
}

func New(opts Options, creds CredentialSource) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewGatewayMetrics(nil)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerDelay <= 0 {
		opts.BreakerDelay = defaultBreakerDelay
	}

	g := &Gateway{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		client:  opts.HTTPClient,
		creds:   creds,
		metrics: opts.Metrics,
		clock:   opts.Clock,
	}
	g.breaker = circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(opts.BreakerThreshold).
		WithDelay(opts.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Backend circuit breaker state changed",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			g.metrics.BreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return g
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// Do sends req and decodes a 2xx JSON response into out (when out is non-nil).
// Every returned error is an *apperrors.Error.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	ctx, _ = correlation.Ensure(ctx)
	return g.do(ctx, req, out, 0)
}

// do performs one attempt. attempt is 0 for the original request and 1 for
// the single retry after a refresh; a 401 on attempt 1 is final.
func (g *Gateway) do(ctx context.Context, req Request, out any, attempt int) error {
	token := req.Token
	var held domain.Credentials
	if req.sessionBound() {
		held = g.creds.Credentials()
		token = held.AccessToken
	}

	status, body, err := g.send(ctx, req, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && req.sessionBound() {
		original := classify(status, body)
		if attempt > 0 {
			slog.WarnContext(ctx, "Request rejected after token refresh", "path", req.route())
			g.forceLogout(ctx, held)
			return original
		}
		if err := g.refresh(ctx, held); err != nil {
			slog.WarnContext(ctx, "Token refresh failed", "path", req.route(), "error", err)
			g.forceLogout(ctx, held)
			return original
		}
		return g.do(ctx, req, out, attempt+1)
	}

	if status < 200 || status >= 300 {
		return classify(status, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.UnknownFailure(fmt.Sprintf("failed to decode %s response", req.route()), err)
	}
	return nil
}

// send performs a single HTTP exchange guarded by the timeout and the breaker.
func (g *Gateway) send(ctx context.Context, req Request, token string) (int, []byte, error) {
	start := g.clock.Now()
	outcome := "ok"
	defer func() {
		g.metrics.ObserveRequest(req.Method, req.route(), outcome, g.clock.Since(start))
	}()

	if !g.breaker.TryAcquirePermit() {
		outcome = string(apperrors.KindNetwork)
		return 0, nil, apperrors.NetworkFailure("backend circuit open", circuitbreaker.ErrOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := g.newHTTPRequest(ctx, req, token)
	if err != nil {
		outcome = string(apperrors.KindUnknown)
		return 0, nil, apperrors.UnknownFailure("failed to build request", err)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.breaker.RecordError(err)
		outcome = string(apperrors.KindNetwork)
		slog.DebugContext(ctx, "Backend request failed", "method", req.Method, "path", req.route(), "error", err)
		return 0, nil, apperrors.NetworkFailure(fmt.Sprintf("%s %s", req.Method, req.route()), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		g.breaker.RecordError(err)
		outcome = string(apperrors.KindNetwork)
		return 0, nil, apperrors.NetworkFailure("failed to read response", err)
	}

	if resp.StatusCode >= 500 {
		g.breaker.RecordError(fmt.Errorf("status %d", resp.StatusCode))
	} else {
		g.breaker.RecordSuccess()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = string(classify(resp.StatusCode, body).Kind)
	}

	slog.DebugContext(ctx, "Backend request", "method", req.Method, "path", req.route(), "status", resp.StatusCode)
	return resp.StatusCode, body, nil
}

func (g *Gateway) newHTTPRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, g.baseURL+req.Path, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id, ok := correlation.ID(ctx); ok {
		httpReq.Header.Set(correlation.Header, id)
	}
	if !req.Anonymous && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func (g *Gateway) forceLogout(ctx context.Context, held domain.Credentials) {
	g.metrics.ForcedLogouts.Inc()
	g.creds.Revoke(ctx, held.RefreshToken)
}

var errNoRefreshToken = errors.New("no refresh token")

// TokenRefreshError reports a failed refresh exchange.
type TokenRefreshError struct {
	Err error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// refresh exchanges the refresh token for a new access token. held are the
// credentials the failed request used: when another request already replaced
// them, no second exchange is made. Concurrent callers share one exchange.
func (g *Gateway) refresh(ctx context.Context, held domain.Credentials) error {
	current := g.creds.Credentials()
	if !current.CanRefresh() {
		g.metrics.RefreshesTotal.WithLabelValues("missing").Inc()
		return &TokenRefreshError{Err: errNoRefreshToken}
	}
	if current.AccessToken != "" && current.AccessToken != held.AccessToken {
		return nil
	}

	_, err, _ := g.refreshGroup.Do(current.RefreshToken, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others.
		refreshCtx := context.WithoutCancel(ctx)
		return nil, g.exchangeRefreshToken(refreshCtx, current)
	})
	return err
}

func (g *Gateway) exchangeRefreshToken(ctx context.Context, current domain.Credentials) error {
	req := Request{
		Method:    http.MethodPost,
		Path:      refreshPath,
		Body:      map[string]string{"refresh": current.RefreshToken},
		Anonymous: true,
	}

	status, body, err := g.send(ctx, req, "")
	if err != nil {
		g.metrics.RefreshesTotal.WithLabelValues("error").Inc()
		return &TokenRefreshError{Err: err}
	}
	if status != http.StatusOK {
		g.metrics.RefreshesTotal.WithLabelValues("rejected").Inc()
		return &TokenRefreshError{Err: classify(status, body)}
	}

	var result struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Access == "" {
		g.metrics.RefreshesTotal.WithLabelValues("error").Inc()
		return &TokenRefreshError{Err: fmt.Errorf("malformed refresh response: %w", errors.Join(err, errors.New("missing access token")))}
	}

	next := domain.Credentials{AccessToken: result.Access, RefreshToken: current.RefreshToken}
	if result.Refresh != "" {
		next.RefreshToken = result.Refresh
	}
	if err := g.creds.Replace(ctx, current.RefreshToken, next); err != nil {
		g.metrics.RefreshesTotal.WithLabelValues("error").Inc()
		return &TokenRefreshError{Err: err}
	}

	g.metrics.RefreshesTotal.WithLabelValues("ok").Inc()
	slog.DebugContext(ctx, "Access token refreshed", "rotated", result.Refresh != "")
	return nil
}
