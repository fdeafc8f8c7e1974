// Package tree owns the path-addressable component tree.
//
// Ownership boundary:
// - nodes with a closed kind set (plain, link, built) and derived paths
// - the flat path index and every structural mutation that must keep it in step
// - link resolution, looked up on every access and never cached
package tree
