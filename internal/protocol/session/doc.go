// Package session owns connection-level helpers shared by the server
// transport and the client.
//
// Ownership boundary:
// - reliability defaults (timeouts, send queue depth)
// - retry/backoff policy
// - in-flight call tracking keyed by correlation id
package session
