package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthAPI struct {
	mu sync.Mutex

	tokens     domain.Credentials
	tokenErr   error
	signupErr  error
	profile    domain.UserProfile
	meErr      error
	meTokenErr error
	// onMe runs during Me, before it returns.
	onMe func()

	tokenCalls  []string
	signupCalls []string
	meCalls     int
	pinned      []string
}

func (f *fakeAuthAPI) ObtainToken(_ context.Context, username, password string) (domain.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls = append(f.tokenCalls, username+":"+password)
	return f.tokens, f.tokenErr
}

func (f *fakeAuthAPI) Signup(_ context.Context, username, email, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signupCalls = append(f.signupCalls, username+":"+password)
	return f.signupErr
}

func (f *fakeAuthAPI) Me(context.Context) (domain.UserProfile, error) {
	f.mu.Lock()
	f.meCalls++
	profile, err, onMe := f.profile, f.meErr, f.onMe
	f.mu.Unlock()
	if onMe != nil {
		onMe()
	}
	return profile, err
}

func (f *fakeAuthAPI) MeWithToken(_ context.Context, access string) (domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, access)
	return f.profile, f.meTokenErr
}

type countingNavigator struct {
	mu    sync.Mutex
	count int
}

func (n *countingNavigator) ToLanding() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *countingNavigator) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type harness struct {
	api       *fakeAuthAPI
	store     *state.MemoryStore
	persister *state.Persister
	vault     *Vault
	nav       *countingNavigator
	clock     *clockwork.FakeClock
	manager   *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api: &fakeAuthAPI{
			tokens:  domain.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"},
			profile: domain.UserProfile{ID: 7, Username: "ada", Email: "ada@example.com", TotalPoints: 12},
		},
		store: state.NewMemoryStore(),
		nav:   &countingNavigator{},
		clock: clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.persister = state.NewPersister(h.store, nil)
	h.vault = NewVault(h.persister)
	h.manager = NewManager(h.api, h.vault, h.persister, h.clock, h.nav)
	return h
}

func (h *harness) seedSession(t *testing.T, creds domain.Credentials, profile domain.UserProfile) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.persister.SaveCredentials(ctx, creds))
	require.NoError(t, h.persister.SaveProfile(ctx, profile))
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.manager.Login(ctx, "ada", "secret")

	require.True(t, res.OK)
	assert.Nil(t, res.Failure)
	assert.Equal(t, domain.StateAuthenticated, h.manager.State())
	profile, ok := h.manager.Profile()
	require.True(t, ok)
	assert.Equal(t, int64(7), profile.ID)
	assert.Equal(t, []string{"access-1"}, h.api.pinned, "profile fetched with the new token")
	assert.Equal(t, h.api.tokens, h.vault.Credentials())

	creds, found, err := h.persister.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, h.api.tokens, creds)
	stored, found, err := h.persister.LoadProfile(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", stored.Username)
}

func TestLogin_ProfileMatchesTokenHolder(t *testing.T) {
	h := newHarness(t)
	h.api.tokens = domain.Credentials{
		AccessToken:  signedToken(t, jwt.MapClaims{"user_id": 7, "token_type": "access"}),
		RefreshToken: "refresh-1",
	}

	res := h.manager.Login(context.Background(), "ada", "secret")

	require.True(t, res.OK)
	profile, _ := h.manager.Profile()
	assert.Equal(t, int64(7), profile.ID)
}

func TestLogin_RejectsProfileOfAnotherUser(t *testing.T) {
	h := newHarness(t)
	h.api.tokens = domain.Credentials{
		AccessToken:  signedToken(t, jwt.MapClaims{"user_id": 8}),
		RefreshToken: "refresh-1",
	}

	res := h.manager.Login(context.Background(), "ada", "secret")

	assert.False(t, res.OK)
	assert.Equal(t, apperrors.KindUnknown, res.Failure.Kind)
	assert.True(t, errors.Is(res.Failure, domain.ErrTokenMismatch))
	assert.Equal(t, domain.StateAnonymous, h.manager.State())
	assert.Empty(t, h.store.Snapshot())
}

func TestLogin_FailureLeavesPreviousSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)
	before := h.manager.Snapshot()

	h.api.tokenErr = apperrors.AuthorizationFailure("No active account found with the given credentials")
	res := h.manager.Login(ctx, "bob", "wrong")

	assert.False(t, res.OK)
	assert.Equal(t, apperrors.KindAuthorization, res.Failure.Kind)
	assert.Equal(t, before, h.manager.Snapshot())
	assert.Equal(t, "access-1", h.vault.Credentials().AccessToken)
}

func TestLogin_BlankFieldsMakeNoRequest(t *testing.T) {
	h := newHarness(t)

	res := h.manager.Login(context.Background(), "  ", "")

	assert.False(t, res.OK)
	assert.Equal(t, apperrors.KindValidation, res.Failure.Kind)
	assert.ElementsMatch(t, []string{"password", "username"}, res.Failure.FieldNames())
	assert.Empty(t, h.api.tokenCalls)
}

func TestLogin_WhileAuthenticatedReplacesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)

	h.api.tokens = domain.Credentials{AccessToken: "access-2", RefreshToken: "refresh-2"}
	h.api.profile = domain.UserProfile{ID: 9, Username: "bob"}
	res := h.manager.Login(ctx, "bob", "pw")

	require.True(t, res.OK)
	profile, _ := h.manager.Profile()
	assert.Equal(t, int64(9), profile.ID)
	assert.Equal(t, "access-2", h.vault.Credentials().AccessToken)
}

func TestSignup_LogsInWithIdenticalCredentials(t *testing.T) {
	h := newHarness(t)

	res := h.manager.Signup(context.Background(), "ada", "ada@example.com", "s3cret")

	assert.True(t, res.OK)
	assert.True(t, res.AccountCreated)
	assert.Equal(t, []string{"ada:s3cret"}, h.api.signupCalls)
	assert.Equal(t, []string{"ada:s3cret"}, h.api.tokenCalls)
	assert.Equal(t, domain.StateAuthenticated, h.manager.State())
}

func TestSignup_AccountCreationFailure(t *testing.T) {
	h := newHarness(t)
	h.api.signupErr = apperrors.ValidationFailure(400, map[string][]string{
		"username": {"A user with that username already exists."},
	})

	res := h.manager.Signup(context.Background(), "ada", "ada@example.com", "s3cret")

	assert.False(t, res.OK)
	assert.False(t, res.AccountCreated)
	assert.Equal(t, apperrors.KindValidation, res.Failure.Kind)
	assert.Contains(t, res.Failure.Fields, "username")
	assert.Empty(t, h.api.tokenCalls)
}

func TestSignup_FollowUpLoginFailure(t *testing.T) {
	h := newHarness(t)
	h.api.tokenErr = apperrors.NetworkFailure("POST /token/", errors.New("connection reset"))

	res := h.manager.Signup(context.Background(), "ada", "ada@example.com", "s3cret")

	assert.False(t, res.OK)
	assert.True(t, res.AccountCreated)
	assert.Equal(t, apperrors.KindNetwork, res.Failure.Kind)
}

func TestLogout_ClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)

	h.manager.Logout(ctx)

	assert.Equal(t, domain.StateAnonymous, h.manager.State())
	_, ok := h.manager.Profile()
	assert.False(t, ok)
	assert.True(t, h.vault.Credentials().IsZero())
	assert.Empty(t, h.store.Snapshot())
	assert.Equal(t, 1, h.nav.calls())
}

func TestRestore_NoTokensStaysAnonymous(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.persister.SaveProfile(ctx, domain.UserProfile{ID: 3}))

	got := h.manager.Restore(ctx)

	assert.Equal(t, domain.StateAnonymous, got)
	assert.Zero(t, h.api.meCalls)
	assert.Empty(t, h.store.Snapshot(), "stale profile removed")
}

func TestRestore_ResumesPersistedSession(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, domain.Credentials{AccessToken: "old", RefreshToken: "r"}, domain.UserProfile{ID: 7, TotalPoints: 1})

	var states []domain.SessionState
	h.manager.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	got := h.manager.Restore(context.Background())

	assert.Equal(t, domain.StateAuthenticated, got)
	assert.Equal(t, []domain.SessionState{domain.StateLoading, domain.StateAuthenticated}, states)
	profile, _ := h.manager.Profile()
	assert.Equal(t, 12.0, profile.TotalPoints, "fresh profile replaces the cached one")
	assert.Equal(t, "old", h.vault.Credentials().AccessToken)
}

func TestRestore_FailureLogsOut(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, domain.Credentials{AccessToken: "old", RefreshToken: "r"}, domain.UserProfile{ID: 7})
	h.api.meErr = apperrors.ServerFailure(500, "boom")

	got := h.manager.Restore(context.Background())

	assert.Equal(t, domain.StateAnonymous, got)
	assert.Empty(t, h.store.Snapshot())
	assert.Equal(t, 1, h.nav.calls())
}

func TestRestore_RejectedRefreshNavigatesOnce(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, domain.Credentials{AccessToken: "old", RefreshToken: "r"}, domain.UserProfile{ID: 7})
	ctx := context.Background()
	h.api.meErr = apperrors.AuthorizationFailure("Token is invalid or expired")
	h.api.onMe = func() { h.vault.Revoke(ctx, "r") }

	got := h.manager.Restore(ctx)

	assert.Equal(t, domain.StateAnonymous, got)
	assert.Empty(t, h.store.Snapshot())
	assert.Equal(t, 1, h.nav.calls())
}

func TestRestore_RunsOnce(t *testing.T) {
	h := newHarness(t)
	h.seedSession(t, domain.Credentials{AccessToken: "old", RefreshToken: "r"}, domain.UserProfile{ID: 7})
	ctx := context.Background()

	first := h.manager.Restore(ctx)
	second := h.manager.Restore(ctx)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.api.meCalls)
}

func TestUpdateProfile_NoOpKeepsVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)
	before := h.manager.Snapshot()

	notified := 0
	h.manager.Subscribe(func(Snapshot) { notified++ })
	unchanged := before.Profile.TotalPoints
	res := h.manager.UpdateProfile(ctx, domain.ProfilePatch{TotalPoints: &unchanged})

	assert.True(t, res.OK)
	assert.Equal(t, before.Version, h.manager.Snapshot().Version)
	assert.Zero(t, notified)
}

func TestUpdateProfile_MergesAndPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)
	before := h.manager.Snapshot()

	points, weight := 40.0, -3.0
	res := h.manager.UpdateProfile(ctx, domain.ProfilePatch{TotalPoints: &points, TotalWeight: &weight})

	require.True(t, res.OK)
	after := h.manager.Snapshot()
	assert.Greater(t, after.Version, before.Version)
	assert.Equal(t, 40.0, after.Profile.TotalPoints)
	assert.Zero(t, after.Profile.TotalWeight, "negative totals clamp to zero")
	assert.Equal(t, int64(7), after.Profile.ID)

	stored, _, err := h.persister.LoadProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, stored.TotalPoints)
}

func TestUpdateProfile_RequiresSession(t *testing.T) {
	h := newHarness(t)
	points := 1.0

	res := h.manager.UpdateProfile(context.Background(), domain.ProfilePatch{TotalPoints: &points})

	assert.False(t, res.OK)
	assert.Equal(t, apperrors.KindAuthorization, res.Failure.Kind)
}

func TestUpdateProfileFor_DropsPatchForPreviousUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)
	before := h.manager.Snapshot()

	points := 400.0
	res := h.manager.UpdateProfileFor(ctx, 99, domain.ProfilePatch{TotalPoints: &points})

	assert.True(t, res.OK)
	after := h.manager.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 12.0, after.Profile.TotalPoints)
}

func TestUpdateProfileFor_AppliesToCurrentUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)

	points := 40.0
	res := h.manager.UpdateProfileFor(ctx, 7, domain.ProfilePatch{TotalPoints: &points})

	require.True(t, res.OK)
	assert.Equal(t, 40.0, h.manager.Snapshot().Profile.TotalPoints)
}

func TestSubscribe_Cancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var versions []uint64
	cancel := h.manager.Subscribe(func(s Snapshot) { versions = append(versions, s.Version) })

	require.True(t, h.manager.Login(ctx, "ada", "secret").OK)
	cancel()
	h.manager.Logout(ctx)

	assert.Len(t, versions, 1)
}

func TestTokenExpiry(t *testing.T) {
	h := newHarness(t)
	exp := h.clock.Now().Add(5 * time.Minute)
	h.api.tokens = domain.Credentials{
		AccessToken:  signedToken(t, jwt.MapClaims{"user_id": "7", "exp": exp.Unix()}),
		RefreshToken: "r",
	}
	require.True(t, h.manager.Login(context.Background(), "ada", "secret").OK)

	remaining, ok := h.manager.TokenExpiry()

	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, remaining)
}

func TestTokenExpiry_OpaqueToken(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.manager.Login(context.Background(), "ada", "secret").OK)

	_, ok := h.manager.TokenExpiry()
	assert.False(t, ok)
}
