package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pscheid92/wastepoints/internal/domain"
	"github.com/pscheid92/wastepoints/internal/state"
)

// Vault holds the current credentials in memory and persists every change.
// It is the gateway's credential source; the Manager is its only other writer.
// Writes that persist credentials hold mu for the whole write so storage and
// memory always agree on the session.
type Vault struct {
	persister *state.Persister

	mu       sync.RWMutex
	creds    domain.Credentials
	onRevoke func(ctx context.Context)
}

func NewVault(persister *state.Persister) *Vault {
	return &Vault{persister: persister}
}

// Load reads persisted credentials into memory.
func (v *Vault) Load(ctx context.Context) (domain.Credentials, bool, error) {
	creds, ok, err := v.persister.LoadCredentials(ctx)
	if err != nil {
		return domain.Credentials{}, false, err
	}
	if ok {
		v.set(creds)
	}
	return creds, ok, nil
}

func (v *Vault) Credentials() domain.Credentials {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creds
}

// Replace stores credentials refreshed from refreshToken. It fails with
// ErrNotAuthenticated when the session ended or was replaced by a new login
// while the refresh was in flight.
func (v *Vault) Replace(ctx context.Context, refreshToken string, creds domain.Credentials) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.creds.CanRefresh() || v.creds.RefreshToken != refreshToken {
		return domain.ErrNotAuthenticated
	}
	if err := v.persister.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("failed to persist refreshed credentials: %w", err)
	}
	v.creds = creds
	return nil
}

// Install persists and installs the credentials of a new login. It holds the
// lock across the write, so a refresh for the previous session either lands
// first and is overwritten or runs afterwards and is rejected by Replace.
func (v *Vault) Install(ctx context.Context, creds domain.Credentials) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.persister.SaveCredentials(ctx, creds); err != nil {
		return err
	}
	v.creds = creds
	return nil
}

// OnRevoke registers the forced-logout handler.
func (v *Vault) OnRevoke(fn func(ctx context.Context)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onRevoke = fn
}

// Revoke ends the session identified by refreshToken. A revocation for an
// older session is ignored.
func (v *Vault) Revoke(ctx context.Context, refreshToken string) {
	v.mu.RLock()
	current := v.creds
	fn := v.onRevoke
	v.mu.RUnlock()

	if current.IsZero() || current.RefreshToken != refreshToken {
		slog.DebugContext(ctx, "Ignoring revocation for a session that already ended")
		return
	}

	if fn != nil {
		fn(ctx)
		return
	}
	v.clear()
	if err := v.persister.Clear(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to clear persisted session", "error", err)
	}
}

func (v *Vault) set(creds domain.Credentials) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds = creds
}

func (v *Vault) clear() {
	v.set(domain.Credentials{})
}
