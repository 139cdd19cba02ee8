package provider

import (
	"regexp"
	"strings"

	"subtrove/internal/subtitles"
)

var (
	stemSeparators  = regexp.MustCompile(`[._]+`)
	yearOrSeasonTag = regexp.MustCompile(`(?i)\b(19|20)\d{2}\b|\bS\d{1,2}(E\d{1,3})?\b|\bseason\s*\d+\b`)
	spaceRun        = regexp.MustCompile(`\s+`)
)

// QueryVariants lists the query strings an adapter tries in order until one
// yields results: the cleaned file stem, the raw stem, the title (with the
// episode tag for TV), and the title stripped of year and season markers.
// Duplicates are removed case-insensitively while preserving order.
func QueryVariants(req subtitles.SearchRequest) []string {
	var variants []string
	if stem := req.FileStem(); stem != "" {
		variants = append(variants, collapse(stemSeparators.ReplaceAllString(stem, " ")), stem)
	}
	for _, keyword := range req.Keywords() {
		if tag := req.Media.EpisodeTag(); tag != "" {
			variants = append(variants, keyword+" "+tag)
		}
		variants = append(variants, keyword)
		variants = append(variants, collapse(yearOrSeasonTag.ReplaceAllString(keyword, " ")))
	}

	unique := make([]string, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, variant := range variants {
		variant = strings.TrimSpace(variant)
		if variant == "" {
			continue
		}
		key := strings.ToLower(variant)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, variant)
	}
	return unique
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
