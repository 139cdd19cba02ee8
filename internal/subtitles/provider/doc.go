// Package provider defines the contract every subtitle source implements and
// the plumbing adapters share.
//
// Adapter is the capability interface: a cheap availability probe, a search
// that returns whatever it managed to parse, an idempotent download, and a
// quota snapshot that never touches the network. Registry holds the adapters
// wired at start-up and resolves them by source tag.
//
// Throttle spaces calls to one provider and retries rate-limited or transient
// failures with exponential backoff inside the caller's deadline.
// LimitTracker owns the quota snapshot an adapter updates after every
// round-trip. ChooseBestFile picks the subtitle worth keeping out of an
// archive or multi-file listing.
package provider
