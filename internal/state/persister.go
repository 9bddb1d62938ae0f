package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/wastepoints/internal/crypto"
	"github.com/pscheid92/wastepoints/internal/domain"
)

// Fixed storage keys.
const (
	KeyTokens  = "authTokens"
	KeyProfile = "user"
)

type Persister struct {
	store  domain.KeyValueStore
	crypto crypto.Service
}

func NewPersister(store domain.KeyValueStore, cryptoSvc crypto.Service) *Persister {
	if cryptoSvc == nil {
		cryptoSvc = crypto.NoopService{}
	}
	return &Persister{store: store, crypto: cryptoSvc}
}

// LoadCredentials returns the persisted token pair, or ok=false when none is stored.
func (p *Persister) LoadCredentials(ctx context.Context) (domain.Credentials, bool, error) {
	raw, err := p.store.Get(ctx, KeyTokens)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return domain.Credentials{}, false, nil
	}
	if err != nil {
		return domain.Credentials{}, false, fmt.Errorf("failed to read credentials: %w", err)
	}

	plain, err := p.crypto.Decrypt(raw)
	if err != nil {
		return domain.Credentials{}, false, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds domain.Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return domain.Credentials{}, false, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, !creds.IsZero(), nil
}

func (p *Persister) SaveCredentials(ctx context.Context, creds domain.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := p.crypto.Encrypt(string(data))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	if err := p.store.Set(ctx, KeyTokens, sealed); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// LoadProfile returns the last-known profile, or ok=false when none is stored.
func (p *Persister) LoadProfile(ctx context.Context) (domain.UserProfile, bool, error) {
	raw, err := p.store.Get(ctx, KeyProfile)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return domain.UserProfile{}, false, nil
	}
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("failed to read profile: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("failed to decode profile: %w", err)
	}
	return profile, true, nil
}

func (p *Persister) SaveProfile(ctx context.Context, profile domain.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := p.store.Set(ctx, KeyProfile, string(data)); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// Clear removes credentials and profile. Both deletes are attempted.
func (p *Persister) Clear(ctx context.Context) error {
	return errors.Join(
		p.store.Delete(ctx, KeyTokens),
		p.store.Delete(ctx, KeyProfile),
	)
}
