package domain

import "context"

type SessionState int

const (
	StateAnonymous SessionState = iota
	StateLoading
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a valid session transition.
// Re-entering authenticated from authenticated is allowed: a second login replaces
// credentials and profile.
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case StateAnonymous:
		return next == StateLoading || next == StateAuthenticated
	case StateLoading:
		return next == StateAnonymous || next == StateAuthenticated
	case StateAuthenticated:
		return next == StateAnonymous || next == StateAuthenticated
	default:
		return false
	}
}

// KeyValueStore is durable string storage that survives process restarts.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Navigator moves the view layer to a public surface after logout.
type Navigator interface {
	ToLanding()
}

// NopNavigator ignores navigation requests.
type NopNavigator struct{}

func (NopNavigator) ToLanding() {}
