package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/state"
)

// AuthAPI is the subset of the backend the session needs.
type AuthAPI interface {
	ObtainToken(ctx context.Context, username, password string) (domain.Credentials, error)
	Signup(ctx context.Context, username, email, password string) error
	Me(ctx context.Context) (domain.UserProfile, error)
	MeWithToken(ctx context.Context, access string) (domain.UserProfile, error)
}

// Snapshot is an immutable view of the session. Version increases on every
// observable change.
type Snapshot struct {
	State   domain.SessionState
	Profile *domain.UserProfile
	Version uint64
}

// Authenticated reports whether the snapshot carries a signed-in profile.
func (s Snapshot) Authenticated() bool {
	return s.State == domain.StateAuthenticated && s.Profile != nil
}

type SignupResult struct {
	apperrors.Result
	// AccountCreated separates a rejected signup from a failed follow-up login.
	AccountCreated bool
}

type Manager struct {
	api       AuthAPI
	vault     *Vault
	persister *state.Persister
	clock     clockwork.Clock
	nav       domain.Navigator

	mu          sync.Mutex
	state       domain.SessionState
	profile     *domain.UserProfile
	version     uint64
	restored    bool
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

func NewManager(api AuthAPI, vault *Vault, persister *state.Persister, clock clockwork.Clock, nav domain.Navigator) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if nav == nil {
		nav = domain.NopNavigator{}
	}
	m := &Manager{
		api:         api,
		vault:       vault,
		persister:   persister,
		clock:       clock,
		nav:         nav,
		state:       domain.StateAnonymous,
		subscribers: make(map[int]func(Snapshot)),
	}
	vault.OnRevoke(m.forceLogout)
	return m
}

func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Profile returns a copy of the current profile.
func (m *Manager) Profile() (domain.UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return domain.UserProfile{}, false
	}
	return *m.profile, true
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// TokenExpiry returns when the current access token expires, if it says so.
func (m *Manager) TokenExpiry() (time.Duration, bool) {
	exp, ok := tokenExpiry(m.vault.Credentials().AccessToken)
	if !ok {
		return 0, false
	}
	return exp.Sub(m.clock.Now()), true
}

// Subscribe registers fn for every future snapshot change and returns a
// function that removes it. fn runs outside the manager's lock.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Manager) Login(ctx context.Context, username, password string) apperrors.Result {
	if err := requireFields(map[string]string{"username": username, "password": password}); err != nil {
		return apperrors.Failed(err)
	}

	creds, err := m.api.ObtainToken(ctx, username, password)
	if err != nil {
		slog.InfoContext(ctx, "Login rejected", "username", username, "kind", apperrors.KindOf(err))
		return apperrors.Failed(err)
	}

	profile, err := m.api.MeWithToken(ctx, creds.AccessToken)
	if err != nil {
		slog.WarnContext(ctx, "Profile fetch after login failed", "username", username, "error", err)
		return apperrors.Failed(err)
	}

	if err := verifyHolder(creds.AccessToken, profile.ID); err != nil {
		slog.ErrorContext(ctx, "Issued token does not match profile", "error", err)
		return apperrors.Failed(apperrors.UnknownFailure("token does not belong to the fetched profile", err))
	}

	if err := m.commit(ctx, creds, profile); err != nil {
		slog.ErrorContext(ctx, "Failed to persist session", "error", err)
		return apperrors.Failed(apperrors.UnknownFailure("failed to persist session", err))
	}

	slog.InfoContext(ctx, "Logged in", "user_id", profile.ID, "username", profile.Username)
	return apperrors.Success()
}

func (m *Manager) Signup(ctx context.Context, username, email, password string) SignupResult {
	fields := map[string]string{"username": username, "email": email, "password": password}
	if err := requireFields(fields); err != nil {
		return SignupResult{Result: apperrors.Failed(err)}
	}

	if err := m.api.Signup(ctx, username, email, password); err != nil {
		slog.InfoContext(ctx, "Signup rejected", "username", username, "kind", apperrors.KindOf(err))
		return SignupResult{Result: apperrors.Failed(err)}
	}
	slog.InfoContext(ctx, "Account created", "username", username)

	return SignupResult{Result: m.Login(ctx, username, password), AccountCreated: true}
}

func (m *Manager) Logout(ctx context.Context) {
	m.endSession(ctx, "logout")
}

func (m *Manager) forceLogout(ctx context.Context) {
	m.endSession(ctx, "authorization lost")
}

func (m *Manager) endSession(ctx context.Context, reason string) {
	m.vault.clear()
	if err := m.persister.Clear(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to clear persisted session", "error", err)
	}

	m.mu.Lock()
	snap, changed := m.transitionLocked(domain.StateAnonymous, nil)
	m.mu.Unlock()

	if changed {
		slog.InfoContext(ctx, "Session ended", "reason", reason)
		m.notify(snap)
	}
	m.nav.ToLanding()
}

// Restore resumes a persisted session. Only the first call does any work;
// later calls return the current state.
func (m *Manager) Restore(ctx context.Context) domain.SessionState {
	m.mu.Lock()
	if m.restored {
		s := m.state
		m.mu.Unlock()
		return s
	}
	m.restored = true
	m.mu.Unlock()

	_, ok, err := m.vault.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Persisted credentials unreadable", "error", err)
		m.Logout(ctx)
		return m.State()
	}
	if !ok {
		if err := m.persister.Clear(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to clear stale profile", "error", err)
		}
		return m.State()
	}

	// The last-known profile is shown while the fresh one loads.
	var cached *domain.UserProfile
	if p, found, err := m.persister.LoadProfile(ctx); err == nil && found {
		cached = &p
	}
	m.mu.Lock()
	snap, changed := m.transitionLocked(domain.StateLoading, cached)
	m.mu.Unlock()
	if changed {
		m.notify(snap)
	}

	profile, err := m.api.Me(ctx)
	if err != nil {
		slog.InfoContext(ctx, "Session restore failed", "kind", apperrors.KindOf(err))
		// A rejected refresh has already ended the session through the vault.
		if m.State() != domain.StateAnonymous {
			m.Logout(ctx)
		}
		return m.State()
	}

	if m.vault.Credentials().IsZero() {
		// Revoked while the profile was loading.
		return m.State()
	}
	if err := m.persister.SaveProfile(ctx, profile); err != nil {
		slog.WarnContext(ctx, "Failed to persist restored profile", "error", err)
	}
	m.publish(profile)
	slog.InfoContext(ctx, "Session restored", "user_id", profile.ID)
	return m.State()
}

// UpdateProfile merges patch into the current profile and persists it
// without contacting the backend. A patch that changes nothing is a no-op.
func (m *Manager) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) apperrors.Result {
	return m.updateProfile(ctx, 0, patch)
}

// UpdateProfileFor is UpdateProfile for data fetched on behalf of userID.
// When another user has signed in since, the patch is dropped.
func (m *Manager) UpdateProfileFor(ctx context.Context, userID int64, patch domain.ProfilePatch) apperrors.Result {
	return m.updateProfile(ctx, userID, patch)
}

func (m *Manager) updateProfile(ctx context.Context, userID int64, patch domain.ProfilePatch) apperrors.Result {
	m.mu.Lock()
	if m.profile == nil || m.state != domain.StateAuthenticated {
		m.mu.Unlock()
		return apperrors.Failed(apperrors.AuthorizationFailure(domain.ErrNotAuthenticated.Error()))
	}
	if userID != 0 && m.profile.ID != userID {
		current := m.profile.ID
		m.mu.Unlock()
		slog.DebugContext(ctx, "Dropping profile update for a previous user", "user_id", userID, "current_user_id", current)
		return apperrors.Success()
	}
	next, changed := patch.Apply(*m.profile)
	if !changed {
		m.mu.Unlock()
		return apperrors.Success()
	}
	m.profile = &next
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.persister.SaveProfile(ctx, next); err != nil {
		slog.WarnContext(ctx, "Failed to persist profile", "error", err)
	}
	m.notify(snap)
	return apperrors.Success()
}

// commit persists the new session and then publishes it. A persistence
// failure leaves the previous session in place.
func (m *Manager) commit(ctx context.Context, creds domain.Credentials, profile domain.UserProfile) error {
	prev := m.vault.Credentials()
	if err := m.vault.Install(ctx, creds); err != nil {
		return err
	}
	if err := m.persister.SaveProfile(ctx, profile); err != nil {
		m.rollback(ctx, prev)
		return err
	}

	m.publish(profile)
	return nil
}

func (m *Manager) publish(profile domain.UserProfile) {
	m.mu.Lock()
	snap, changed := m.transitionLocked(domain.StateAuthenticated, &profile)
	m.mu.Unlock()
	if changed {
		m.notify(snap)
	}
}

func (m *Manager) rollback(ctx context.Context, prev domain.Credentials) {
	var err error
	if prev.IsZero() {
		m.vault.clear()
		err = m.persister.Clear(ctx)
	} else {
		err = m.vault.Install(ctx, prev)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to roll back persisted credentials", "error", err)
	}
}

// transitionLocked moves to next with profile. Invalid transitions are
// logged and ignored. Must hold m.mu.
func (m *Manager) transitionLocked(next domain.SessionState, profile *domain.UserProfile) (Snapshot, bool) {
	if m.state == next && next == domain.StateAnonymous {
		return m.snapshotLocked(), false
	}
	if !m.state.CanTransition(next) {
		slog.Warn("Ignoring invalid session transition", "from", m.state.String(), "to", next.String())
		return m.snapshotLocked(), false
	}
	if profile != nil {
		p := *profile
		profile = &p
	}
	m.state = next
	m.profile = profile
	m.version++
	return m.snapshotLocked(), true
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state, Version: m.version}
	if m.profile != nil {
		p := *m.profile
		snap.Profile = &p
	}
	return snap
}

func (m *Manager) notify(snap Snapshot) {
	m.mu.Lock()
	subs := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func requireFields(values map[string]string) error {
	fields := make(map[string][]string)
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			fields[name] = []string{fmt.Sprintf("%s may not be blank", name)}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return apperrors.ValidationFailure(http.StatusBadRequest, fields)
}
