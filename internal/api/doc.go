// Package api defines wire-format types and converters for the HTTP API and
// the CLI's JSON output. It translates search results, selections, cache
// statistics, and provider quotas into transport-friendly DTOs so consumers
// do not couple to internal types.
//
// # Key Types
//
// MediaRequest: a media descriptor plus optional policy overrides, accepted
// by the search and select endpoints.
//
// PolicyOverrides: per-request adjustments applied on top of the configured
// policy. Unset fields keep the configured value.
//
// SearchResponse, SelectResponse, DownloadResponse: results of the inbound
// operations, with ranked matches and per-provider errors.
//
// CacheStats, CleanupResponse, LimitsResponse, ServiceStatus: maintenance and
// status views.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unknown. Durations are reported in milliseconds.
package api
