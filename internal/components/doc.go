// Package components owns the builder-constructed leaf types served by
// nodectl.
//
// Ownership boundary:
// - Group: a plain container
// - Solver: a solver stand-in with iteration/tolerance properties
// - Store: an in-memory key/value component
//
// Register adds every type to a builder registry.
package components
