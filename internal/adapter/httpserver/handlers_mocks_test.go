package httpserver

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/platform/config"
	"github.com/pscheid92/wastepoints/internal/session"
	"github.com/pscheid92/wastepoints/internal/waste"
)

// --- Mock implementations ---

type mockSession struct {
	snapshot    session.Snapshot
	tokenExpiry time.Duration
	hasExpiry   bool

	loginFn  func(ctx context.Context, username, password string) apperrors.Result
	signupFn func(ctx context.Context, username, email, password string) session.SignupResult

	logouts int
}

func (m *mockSession) Snapshot() session.Snapshot { return m.snapshot }

func (m *mockSession) TokenExpiry() (time.Duration, bool) { return m.tokenExpiry, m.hasExpiry }

func (m *mockSession) Login(ctx context.Context, username, password string) apperrors.Result {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return apperrors.Failed(apperrors.UnknownFailure("not implemented", nil))
}

func (m *mockSession) Signup(ctx context.Context, username, email, password string) session.SignupResult {
	if m.signupFn != nil {
		return m.signupFn(ctx, username, email, password)
	}
	return session.SignupResult{Result: apperrors.Failed(apperrors.UnknownFailure("not implemented", nil))}
}

func (m *mockSession) Logout(context.Context) {
	m.logouts++
	m.snapshot = session.Snapshot{State: domain.StateAnonymous, Version: m.snapshot.Version + 1}
}

func (m *mockSession) signIn(profile domain.UserProfile) {
	m.snapshot = session.Snapshot{State: domain.StateAuthenticated, Profile: &profile, Version: m.snapshot.Version + 1}
}

type mockStore struct {
	submitFn             func(ctx context.Context, wasteType domain.WasteType, weightKg float64) waste.SubmitResult
	loadSubmissionsFn    func(ctx context.Context) apperrors.Result
	refreshStatsFn       func(ctx context.Context) apperrors.Result
	refreshLeaderboardFn func(ctx context.Context) apperrors.Result

	submissions   []domain.WasteSubmission
	leaderboard   []domain.LeaderboardEntry
	leaderboardAt time.Duration
	hasBoard      bool
	rank          int
	summary       *waste.Summary

	statsCalls int
	boardCalls int
	loadCalls  int
}

func (m *mockStore) Submit(ctx context.Context, wasteType domain.WasteType, weightKg float64) waste.SubmitResult {
	if m.submitFn != nil {
		return m.submitFn(ctx, wasteType, weightKg)
	}
	return waste.SubmitResult{Result: apperrors.Failed(apperrors.UnknownFailure("not implemented", nil))}
}

func (m *mockStore) LoadSubmissions(ctx context.Context) apperrors.Result {
	m.loadCalls++
	if m.loadSubmissionsFn != nil {
		return m.loadSubmissionsFn(ctx)
	}
	return apperrors.Success()
}

func (m *mockStore) Submissions() []domain.WasteSubmission { return m.submissions }

func (m *mockStore) RefreshStats(ctx context.Context) apperrors.Result {
	m.statsCalls++
	if m.refreshStatsFn != nil {
		return m.refreshStatsFn(ctx)
	}
	return apperrors.Success()
}

func (m *mockStore) RefreshLeaderboard(ctx context.Context) apperrors.Result {
	m.boardCalls++
	if m.refreshLeaderboardFn != nil {
		return m.refreshLeaderboardFn(ctx)
	}
	m.hasBoard = true
	return apperrors.Success()
}

func (m *mockStore) Leaderboard() []domain.LeaderboardEntry { return m.leaderboard }

func (m *mockStore) LeaderboardAge() (time.Duration, bool) { return m.leaderboardAt, m.hasBoard }

func (m *mockStore) CurrentRank() (int, bool) { return m.rank, m.rank > 0 }

func (m *mockStore) Summary() (waste.Summary, bool) {
	if m.summary == nil {
		return waste.Summary{}, false
	}
	return *m.summary, true
}

// --- Test helpers ---

type testServerOptions struct {
	healthChecks []HealthCheck
	rate         float64
	burst        int
}

func withHealthChecks(checks ...HealthCheck) func(*testServerOptions) {
	return func(o *testServerOptions) {
		o.healthChecks = checks
	}
}

func withRateLimit(rate float64, burst int) func(*testServerOptions) {
	return func(o *testServerOptions) {
		o.rate = rate
		o.burst = burst
	}
}

func newTestServer(t *testing.T, sess *mockSession, store *mockStore, opts ...func(*testServerOptions)) *Server {
	t.Helper()

	o := testServerOptions{rate: 100, burst: 100}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &config.Config{
		ListenAddr:         "127.0.0.1:0",
		RateLimitPerSecond: o.rate,
		RateLimitBurst:     o.burst,
	}
	return NewServer(cfg, sess, store, prometheus.NewRegistry(), o.healthChecks)
}

// serve runs a request through the full middleware chain.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func signedIn() *mockSession {
	sess := &mockSession{}
	sess.signIn(domain.UserProfile{ID: 2, Username: "ada", TotalPoints: 40})
	return sess
}
