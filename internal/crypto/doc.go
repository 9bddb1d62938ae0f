// Package crypto protects persisted credentials at rest.
//
// Tokens written to the state store are sealed with AES-256-GCM when a key is
// configured. Sealed values carry a version prefix so values written before a
// key was configured are still readable as plaintext.
package crypto
