// Package daemon runs the long-running Subtrove service.
//
// A Daemon wraps one engine with flock-based locking so only one service
// instance serves a cache directory. While running it keeps the gocron cache
// maintenance job scheduled and exposes the engine's operations over a small
// JSON HTTP API (search, select, download, cache stats and cleanup, provider
// limits, status) with optional bearer-token authentication.
//
// Keep request translation here: matching, retrieval, and cache policy live in
// their own packages while the daemon focuses on startup, shutdown, and
// transport.
package daemon
