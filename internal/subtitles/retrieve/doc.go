// Package retrieve materializes subtitle files and picks the one playback
// should use.
//
// Retriever downloads a chosen record through its owning provider into the
// cache's content directory under a deterministic name, verifies the file,
// and records it in the cache. Selector combines subtitles found next to the
// media file with cached downloads and, when nothing is available, runs a
// search and downloads the preferred candidate.
package retrieve
