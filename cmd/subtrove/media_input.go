package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"subtrove/internal/api"
	"subtrove/internal/engine"
	"subtrove/internal/media"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
)

// mediaFlags collect a media descriptor from a positional file path, a YAML
// descriptor file, and individual overrides. Flags win over the file.
type mediaFlags struct {
	descriptorPath string
	title          string
	year           int
	season         int
	episode        int
	imdbID         string
	tmdbID         int64
	fileHash       string
	ffprobe        string
}

func (f *mediaFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.descriptorPath, "descriptor", "", "YAML file describing the media")
	flags.StringVar(&f.title, "title", "", "Media title")
	flags.IntVar(&f.year, "year", 0, "Release year")
	flags.IntVar(&f.season, "season", 0, "Season number for TV episodes")
	flags.IntVar(&f.episode, "episode", 0, "Episode number for TV episodes")
	flags.StringVar(&f.imdbID, "imdb", "", "IMDb identifier (tt1375666)")
	flags.Int64Var(&f.tmdbID, "tmdb", 0, "TMDB identifier")
	flags.StringVar(&f.fileHash, "hash", "", "Provider file hash of the media")
	flags.StringVar(&f.ffprobe, "ffprobe", "", "ffprobe binary used to read duration and resolution from the media file")
}

func (f *mediaFlags) descriptor(args []string) (media.Descriptor, error) {
	var d media.Descriptor
	if path := strings.TrimSpace(f.descriptorPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return d, fmt.Errorf("read descriptor: %w", err)
		}
		if err := yaml.Unmarshal(data, &d); err != nil {
			return d, services.Wrap(services.ErrValidation, "cli", "descriptor", "parse descriptor "+path, err)
		}
	}
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return d, fmt.Errorf("resolve media path: %w", err)
		}
		d.FilePath = abs
		d.FileName = ""
	}
	if d.FilePath != "" && d.FileSize == 0 {
		if info, err := os.Stat(d.FilePath); err == nil && info.Mode().IsRegular() {
			d.FileSize = info.Size()
		}
	}
	if v := strings.TrimSpace(f.title); v != "" {
		d.Title = v
	}
	if f.year > 0 {
		d.Year = f.year
	}
	if f.season > 0 {
		d.Season = f.season
	}
	if f.episode > 0 {
		d.Episode = f.episode
	}
	if v := strings.TrimSpace(f.imdbID); v != "" {
		d.IMDBID = v
	}
	if f.tmdbID > 0 {
		d.TMDBID = f.tmdbID
	}
	if v := strings.TrimSpace(f.fileHash); v != "" {
		d.FileHash = v
	}
	if d.BaseName() == "" && strings.TrimSpace(d.Title) == "" && d.IMDBID == "" && d.TMDBID == 0 {
		return d, services.Wrap(services.ErrValidation, "cli", "descriptor",
			"provide a media file, --title, --imdb, --tmdb, or --descriptor", nil)
	}
	return d, nil
}

// resolve builds the descriptor and enriches it with ffprobe when asked.
func (f *mediaFlags) resolve(cmd *cobra.Command, eng *engine.Engine, args []string) (media.Descriptor, error) {
	d, err := f.descriptor(args)
	if err != nil {
		return d, err
	}
	return eng.Enrich(cmd.Context(), strings.TrimSpace(f.ffprobe), d), nil
}

// policyFlags map onto api.PolicyOverrides so the CLI and the HTTP API share
// one override path.
type policyFlags struct {
	language   string
	fallback   string
	quality    string
	sources    []string
	timeout    int
	maxResults int
	minRating  float64
	onlyHD     bool
	primary    bool
	noHI       bool
}

func (p *policyFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&p.language, "lang", "l", "", "Primary subtitle language")
	flags.StringVar(&p.fallback, "fallback", "", "Fallback subtitle language")
	flags.StringVar(&p.quality, "quality", "", "Download preference: best, most_downloaded, latest, any")
	flags.StringSliceVarP(&p.sources, "source", "s", nil, "Restrict to these sources (repeatable)")
	flags.IntVar(&p.timeout, "timeout", 0, "Per-provider search timeout in seconds")
	flags.IntVar(&p.maxResults, "max-results", 0, "Maximum number of ranked results")
	flags.Float64Var(&p.minRating, "min-rating", 0, "Drop subtitles rated below this value")
	flags.BoolVar(&p.onlyHD, "hd", false, "Only keep subtitles made for HD releases")
	flags.BoolVar(&p.primary, "primary-only", false, "Search the primary language only")
	flags.BoolVar(&p.noHI, "no-hi", false, "Exclude hearing-impaired subtitles")
}

func (p *policyFlags) overrides(cmd *cobra.Command) api.PolicyOverrides {
	o := api.PolicyOverrides{
		PrimaryLanguage:  p.language,
		FallbackLanguage: p.fallback,
		DownloadQuality:  p.quality,
		Sources:          p.sources,
		TimeoutSeconds:   p.timeout,
		MaxResults:       p.maxResults,
	}
	flags := cmd.Flags()
	if flags.Changed("min-rating") {
		o.MinRating = &p.minRating
	}
	if flags.Changed("hd") {
		o.OnlyHD = &p.onlyHD
	}
	if flags.Changed("primary-only") {
		auto := !p.primary
		o.AutoSelectLanguage = &auto
	}
	if flags.Changed("no-hi") {
		include := !p.noHI
		o.IncludeHearingImpaired = &include
	}
	return o
}

func (p *policyFlags) policy(cmd *cobra.Command, base subtitles.Policy) (subtitles.Policy, error) {
	return p.overrides(cmd).Apply(base)
}
