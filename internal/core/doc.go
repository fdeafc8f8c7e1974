// Package core owns the nodectl serving context.
//
// Ownership boundary:
// - one mutex serializing every tree, builder and signal access
// - standard component signals (create/delete/move/rename/link/list/configure)
// - the server component and its client-facing signals
// - client notifications (welcome, messages, tree updates)
// - the Service lifecycle binding transport, admin HTTP and signal handling
//
// Handlers run with the core lock held; they must not block on network I/O.
package core
