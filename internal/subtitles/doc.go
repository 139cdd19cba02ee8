// Package subtitles holds the shared subtitle model: provider sources, file
// formats, records, search requests, selection policy, and provider quota
// snapshots.
//
// The engine components live in sub-packages:
//
//   - provider: the adapter contract every source implements, plus registry,
//     throttling, quota tracking, and file helpers shared by adapters
//   - opensubtitles, assrt, subscene: concrete adapters
//   - match: relevance scoring, compatibility gate, and file-name matching
//   - cache: durable record index with expiry, size eviction, and orphan sweep
//   - search: concurrent fan-out across providers with ranking
//   - retrieve: downloads, local discovery, and the final language-priority pick
//
// Records are plain values. Components copy them before mutating so callers
// never observe a shared record changing underneath them.
package subtitles
