// Package ffprobe inspects media files with the ffprobe binary so descriptors
// built from a bare path still carry runtime, size, resolution, and codec for
// the compatibility checks.
package ffprobe
