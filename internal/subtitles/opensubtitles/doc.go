// Package opensubtitles adapts the OpenSubtitles REST API (v1) to the
// provider contract.
//
// Client speaks the wire protocol: Api-Key plus an optional bearer token from
// /login, /subtitles searches, and the two-step /download negotiation. Adapter
// layers provider pacing, X-RateLimit-* quota tracking, query fallbacks, and
// record mapping on top.
package opensubtitles
