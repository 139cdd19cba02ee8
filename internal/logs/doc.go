// Package logs reads the service log file written under paths.log_dir.
//
// Tail returns the last lines or the lines appended after an offset, and
// Follow keeps polling for new lines until its context ends. Filter narrows
// the JSON entries by level, component, request, media, or free text; lines
// that are not JSON only pass an empty filter.
package logs
