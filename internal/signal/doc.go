// Package signal owns the signal argument container and per-node dispatch.
//
// Ownership boundary:
// - typed option values (scalars and arrays)
// - frames with nested sub-frames and correlation/client tagging
// - name -> handler tables and the fault boundary around handlers
package signal
