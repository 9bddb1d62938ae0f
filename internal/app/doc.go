// Package app builds the client's object graph from configuration.
//
// Wiring order: key-value store, persister, credential vault, request gateway,
// backend client, session manager, domain store. The vault is created before
// the gateway and the manager so that both can share it without a cycle.
package app
