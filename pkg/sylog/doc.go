// Package sylog implements a small leveled logger for modmount: a
// handful of package-level functions writing to stderr, gated by a
// settable level.
package sylog
