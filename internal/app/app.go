package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/wastepoints/internal/adapter/filestore"
	"github.com/pscheid92/wastepoints/internal/adapter/metrics"
	"github.com/pscheid92/wastepoints/internal/adapter/redis"
	"github.com/pscheid92/wastepoints/internal/backend"
	"github.com/pscheid92/wastepoints/internal/crypto"
	"github.com/pscheid92/wastepoints/internal/domain"
	"github.com/pscheid92/wastepoints/internal/gateway"
	"github.com/pscheid92/wastepoints/internal/platform/config"
	"github.com/pscheid92/wastepoints/internal/session"
	"github.com/pscheid92/wastepoints/internal/state"
	"github.com/pscheid92/wastepoints/internal/waste"
)

// Options override parts of the graph. Zero values select the defaults.
type Options struct {
	Clock      clockwork.Clock
	Navigator  domain.Navigator
	Store      domain.KeyValueStore
	HTTPClient *http.Client
	Registry   *prometheus.Registry
}

type App struct {
	Config   *config.Config
	Clock    clockwork.Clock
	Registry *prometheus.Registry
	Session  *session.Manager
	Store    *waste.Store

	kv      domain.KeyValueStore
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.NewRegistry()
	}

	a := &App{Config: cfg, Clock: opts.Clock, Registry: opts.Registry}

	kv := opts.Store
	if kv == nil {
		var err error
		if kv, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}

	cryptoSvc, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create crypto service: %w", err)
	}

	a.kv = kv
	persister := state.NewPersister(kv, cryptoSvc)
	vault := session.NewVault(persister)
	gw := gateway.New(gateway.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.RequestTimeout,
		HTTPClient: opts.HTTPClient,
		Metrics:    metrics.NewGatewayMetrics(opts.Registry),
		Clock:      opts.Clock,
	}, vault)
	api := backend.NewClient(gw)

	a.Session = session.NewManager(api, vault, persister, opts.Clock, opts.Navigator)
	a.Store = waste.NewStore(api, a.Session, cfg.GoalPoints, opts.Clock)
	a.closers = append(a.closers, func() error {
		a.Store.Close()
		return nil
	})

	return a, nil
}

func (a *App) openStore(ctx context.Context) (domain.KeyValueStore, error) {
	switch a.Config.StateBackend {
	case config.BackendRedis:
		rdb, err := redis.NewClient(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, err
		}
		rdb.AddHook(redis.NewMetricsHook(metrics.NewStateStoreMetrics(a.Registry)))
		a.closers = append(a.closers, rdb.Close)
		slog.Debug("Using redis state backend", "prefix", a.Config.RedisKeyPrefix)
		return redis.NewKVStore(rdb, a.Config.RedisKeyPrefix), nil
	default:
		fs, err := filestore.New(a.Config.StateDir)
		if err != nil {
			return nil, err
		}
		slog.Debug("Using file state backend", "path", fs.Path())
		return fs, nil
	}
}

// PingStateStore reads the token key to prove the state backend answers.
// A missing key is healthy.
func (a *App) PingStateStore(ctx context.Context) error {
	if _, err := a.kv.Get(ctx, state.KeyTokens); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return fmt.Errorf("state store: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
