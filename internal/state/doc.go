// Package state persists the session's credentials and last-known profile
// under fixed keys of a durable key-value store.
//
// Credentials are sealed with the configured crypto.Service before they are
// written. The profile is stored in plaintext because it holds no secrets.
package state
