// Package services defines shared utilities consumed by the subtitle engine
// components and the provider adapters.
//
// Key responsibilities:
//   - Context helpers that stamp stage names, provider sources, media
//     identifiers, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap and Classify helpers that let
//     callers tell provider failures (recovered and aggregated) apart from
//     configuration and integrity failures (propagated).
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability) stays uniform across providers.
package services
