// Package preflight provides readiness checks for the filesystem paths,
// subtitle providers, and helper binaries subtrove depends on.
//
// The service logs a RunAll snapshot at startup; "subtrove status" renders
// the same results, optionally probing provider reachability over the
// network. Disabled sources are skipped.
package preflight
