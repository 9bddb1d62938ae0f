// Package gateway sends every backend request on behalf of the session.
//
// It attaches the current access token, refreshes it once when the backend
// answers 401 and retries the original request once with the new token. When
// authorization cannot be recovered it revokes the session's credentials,
// which forces a logout. All failures leave this package classified into the
// taxonomy of internal/errors.
package gateway
