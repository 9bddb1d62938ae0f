package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/platform/correlation"
)

// Refreshable is the store surface the refresher drives.
type Refreshable interface {
	Refresh(ctx context.Context) apperrors.Result
}

// Refresher periodically re-fetches stats and the leaderboard while a user
// is signed in, so long-running views stay within one interval of the backend.
type Refresher struct {
	store    Refreshable
	state    func() domain.SessionState
	clock    clockwork.Clock
	interval time.Duration
}

func NewRefresher(store Refreshable, state func() domain.SessionState, clock clockwork.Clock, interval time.Duration) *Refresher {
	return &Refresher{store: store, state: state, clock: clock, interval: interval}
}

// Run blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if r.state() != domain.StateAuthenticated {
		return
	}

	tickCtx := correlation.WithID(ctx, correlation.NewID())
	res := r.store.Refresh(tickCtx)
	if !res.OK {
		slog.WarnContext(tickCtx, "Refresher: refresh failed", "kind", res.Failure.Kind, "error", res.Failure)
		return
	}
	slog.DebugContext(tickCtx, "Refresher: stats and leaderboard refreshed")
}
