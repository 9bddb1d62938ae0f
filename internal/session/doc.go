// Package session owns the client's authentication lifecycle: the
// credential vault shared with the request gateway, login, signup, logout,
// restoring a persisted session and the observable session state.
package session
