package subtitles

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"subtrove/internal/media"
	"subtrove/internal/services"
)

// SearchRequest is built once per search from a descriptor and a policy.
type SearchRequest struct {
	Media                    media.Descriptor
	Languages                []string
	Sources                  []Source
	MaxResults               int
	Timeout                  time.Duration
	MinRating                float64
	OnlyHD                   bool
	ExcludeMachineTranslated bool
	IncludeHearingImpaired   bool
}

// NewSearchRequest resolves the descriptor against its file name and copies
// the policy filters.
func NewSearchRequest(d media.Descriptor, p Policy) SearchRequest {
	return SearchRequest{
		Media:                    d.Resolved(),
		Languages:                p.Languages(),
		Sources:                  append([]Source(nil), p.EnabledSources...),
		MaxResults:               p.MaxResults,
		Timeout:                  p.SearchTimeout,
		MinRating:                p.MinRating,
		OnlyHD:                   p.OnlyHD,
		ExcludeMachineTranslated: p.ExcludeMachineTranslated,
		IncludeHearingImpaired:   p.IncludeHearingImpaired,
	}
}

// Validate requires something to search for.
func (r SearchRequest) Validate() error {
	m := r.Media
	if strings.TrimSpace(m.Title) == "" && m.BaseName() == "" && m.IMDBID == "" && m.TMDBID == 0 && m.FileHash == "" {
		return services.Wrap(services.ErrValidation, "search", "validate request", "title, file name, or an external id is required", nil)
	}
	if r.MaxResults < 0 {
		return services.Wrap(services.ErrValidation, "search", "validate request", fmt.Sprintf("max results must not be negative (got %d)", r.MaxResults), nil)
	}
	return nil
}

// IsEpisode reports whether the request targets a TV episode.
func (r SearchRequest) IsEpisode() bool {
	return r.Media.IsEpisode()
}

// FileIdentifier is the cache key for the request's media.
func (r SearchRequest) FileIdentifier() string {
	return r.Media.FileIdentifier()
}

// PrimaryLanguage returns the most preferred language, empty when none.
func (r SearchRequest) PrimaryLanguage() string {
	if len(r.Languages) == 0 {
		return ""
	}
	return r.Languages[0]
}

// FallbackLanguage returns the second preference, empty when none.
func (r SearchRequest) FallbackLanguage() string {
	if len(r.Languages) < 2 {
		return ""
	}
	return r.Languages[1]
}

// FileStem returns the media file name without its extension.
func (r SearchRequest) FileStem() string {
	name := r.Media.BaseName()
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Keywords lists the distinct query strings worth trying: title, original
// title, and the title recovered from the file name.
func (r SearchRequest) Keywords() []string {
	candidates := []string{r.Media.Title, r.Media.OriginalTitle}
	if name := r.Media.BaseName(); name != "" {
		candidates = append(candidates, media.ParseFileName(name).Title)
	}
	return dedupeFold(candidates)
}

func dedupeFold(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
