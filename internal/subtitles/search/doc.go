// Package search fans a subtitle request out to every enabled provider,
// merges and ranks the answers, and records them in the cache.
//
// Providers run concurrently on a bounded errgroup. A failing or slow
// provider never cancels the others; its error is collected into the result
// alongside whatever the healthy providers returned. A cache hit for the
// media's file identifier short-circuits the fan-out entirely.
package search
