// Package transport owns the server side of client connections.
//
// Ownership boundary:
// - accept loop and per-connection reader/writer goroutines
// - client sessions, their state machine and bounded send queues
// - inbound deframing into dispatcher calls and outbound reply routing
//
// Tree access never happens here; every request is handed to a Dispatcher,
// which is the single serialization point.
package transport
