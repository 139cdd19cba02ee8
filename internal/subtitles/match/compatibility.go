package match

import (
	"subtrove/internal/media"
	"subtrove/internal/subtitles"
)

// Thresholds for the compatibility gate.
const (
	maxYearDrift       = 2
	maxDurationDriftS  = 300
	maxSubtitleToMedia = 0.1
)

// Issue names one compatibility problem.
type Issue string

const (
	IssueSeasonMismatch   Issue = "season_mismatch"
	IssueEpisodeMismatch  Issue = "episode_mismatch"
	IssueYearMismatch     Issue = "year_mismatch"
	IssueDurationMismatch Issue = "duration_mismatch"
	IssueSizeSuspicious   Issue = "size_suspicious"
)

// Critical reports whether the issue alone rejects the pair.
func (i Issue) Critical() bool {
	return i == IssueSeasonMismatch || i == IssueEpisodeMismatch
}

// Severity summarises a compatibility check.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Compatibility is the outcome of CheckCompatibility.
type Compatibility struct {
	Compatible bool     `json:"compatible"`
	Severity   Severity `json:"severity"`
	Issues     []Issue  `json:"issues,omitempty"`
}

// CheckCompatibility is the hard gate run before a subtitle is applied
// automatically. Season or episode metadata that disagrees with an episode
// descriptor is critical; year drift over two years, runtime drift over
// five minutes, and a subtitle larger than a tenth of the media file are
// warnings.
func CheckCompatibility(d media.Descriptor, rec subtitles.Record) Compatibility {
	d = d.Resolved()
	var issues []Issue

	if d.IsEpisode() {
		if season, ok := rec.MetaInt(subtitles.MetaSeason); ok && season != d.Season {
			issues = append(issues, IssueSeasonMismatch)
		}
		if episode, ok := rec.MetaInt(subtitles.MetaEpisode); ok && episode != d.Episode {
			issues = append(issues, IssueEpisodeMismatch)
		}
	}
	if year, ok := rec.MetaInt(subtitles.MetaYear); ok && year > 0 && d.Year > 0 && abs(year-d.Year) > maxYearDrift {
		issues = append(issues, IssueYearMismatch)
	}
	if duration, ok := rec.MetaInt(subtitles.MetaDuration); ok && duration > 0 && d.DurationSeconds > 0 {
		if abs64(int64(duration)-d.DurationSeconds) > maxDurationDriftS {
			issues = append(issues, IssueDurationMismatch)
		}
	}
	if rec.FileSize > 0 && d.FileSize > 0 && float64(rec.FileSize)/float64(d.FileSize) > maxSubtitleToMedia {
		issues = append(issues, IssueSizeSuspicious)
	}

	out := Compatibility{Compatible: true, Severity: SeverityNone, Issues: issues}
	for _, issue := range issues {
		if issue.Critical() {
			out.Compatible = false
			out.Severity = SeverityCritical
			return out
		}
		out.Severity = SeverityWarning
	}
	return out
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
