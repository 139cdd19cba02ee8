package match

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"subtrove/internal/media"
	"subtrove/internal/subtitles"
	"subtrove/internal/textutil"
)

// Factor weights.
const (
	weightLanguage     = 30
	weightTitle        = 25
	weightYear         = 10
	weightEpisode      = 15
	weightQuality      = 20
	weightReleaseGroup = 15
	weightResolution   = 10
)

var (
	seasonEpisodePattern = regexp.MustCompile(`[Ss](\d+)[Ee](\d+)`)
	releaseGroupPattern  = regexp.MustCompile(`-(\w+)$`)
	resolutionPattern    = regexp.MustCompile(`(?i)(720p|1080p|1440p|2160p|4K)`)
)

// Languages is the ordered language preference used for scoring.
type Languages struct {
	Primary  string
	Fallback string
}

// LanguagesOf takes the first two entries of an ordered preference list.
func LanguagesOf(list []string) Languages {
	var l Languages
	if len(list) > 0 {
		l.Primary = list[0]
	}
	if len(list) > 1 {
		l.Fallback = list[1]
	}
	return l
}

// Score rates rec against d.
func Score(d media.Descriptor, rec subtitles.Record, langs Languages) Result {
	d = d.Resolved()
	var acc accumulator

	acc.add("language", languageScore(rec.Language, langs), weightLanguage)
	title := titleScore(d, rec)
	acc.add("title", title, weightTitle)
	recYear, _ := rec.MetaInt(subtitles.MetaYear)
	acc.add("year", yearScore(d.Year, recYear), weightYear)

	episode := 0.0
	if d.IsEpisode() {
		episode = episodeScore(d, rec)
		acc.add("episode", episode, weightEpisode)
	}
	quality := qualityScore(rec)
	acc.add("quality", quality, weightQuality)

	// Without a file name or explicit hint the release factors are left out
	// rather than scored as unknown, so a bare title match is carried by
	// language, title, year and quality. Source trust alone then decides
	// whether an exact match reaches the excellent tier.
	if d.HasFileHints() {
		release := releaseText(rec)
		acc.add("release_group", releaseGroupScore(d, release), weightReleaseGroup)
		acc.add("resolution", resolutionScore(d, release), weightResolution)
	}

	similarity := acc.value()
	result := Result{
		Record:     rec,
		Similarity: similarity,
		Confidence: confidence(similarity, d, rec),
		Quality:    quality,
		Factors:    acc.factors,
	}

	switch {
	case similarity >= ExcellentMatch:
		result.Reasons = append(result.Reasons, ReasonExcellentMatch)
	case similarity >= GoodMatch:
		result.Reasons = append(result.Reasons, ReasonGoodMatch)
	}
	if title > 0.8 {
		result.Reasons = append(result.Reasons, ReasonTitle)
	}
	if d.Year > 0 && recYear == d.Year {
		result.Reasons = append(result.Reasons, ReasonYear)
	}
	if d.IsEpisode() && episode == 1 {
		result.Reasons = append(result.Reasons, ReasonEpisode)
	}
	if rec.Rating > 8 {
		result.Reasons = append(result.Reasons, ReasonHighRating)
	}
	if rec.Downloads > 1000 {
		result.Reasons = append(result.Reasons, ReasonPopular)
	}
	return result
}

// Rank scores every record, drops those under MinSimilarity, and orders the
// rest by similarity, highest first. Ties keep input order.
func Rank(d media.Descriptor, records []subtitles.Record, langs Languages) []Result {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		r := Score(d, rec, langs)
		if r.Similarity < MinSimilarity {
			continue
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results
}

// Best returns the highest ranked good-tier result that also passes the
// compatibility gate.
func Best(d media.Descriptor, records []subtitles.Record, langs Languages) (Result, bool) {
	for _, r := range Rank(d, records, langs) {
		if !r.IsGood() {
			break
		}
		if CheckCompatibility(d, r.Record).Compatible {
			return r, true
		}
	}
	return Result{}, false
}

func languageScore(have string, langs Languages) float64 {
	have = strings.ToLower(strings.TrimSpace(have))
	primary := strings.ToLower(strings.TrimSpace(langs.Primary))
	fallback := strings.ToLower(strings.TrimSpace(langs.Fallback))
	switch {
	case have == "":
		return 0.2
	case primary != "" && have == primary:
		return 1.0
	case primary != "" && sharesBase(have, primary):
		return 0.9
	case fallback != "" && have == fallback:
		return 0.7
	case fallback != "" && sharesBase(have, fallback):
		return 0.6
	default:
		return 0.2
	}
}

// sharesBase matches "zh-tw" against "zh" or "zh-cn".
func sharesBase(a, b string) bool {
	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		return true
	}
	return baseLanguage(a) == baseLanguage(b)
}

func baseLanguage(tag string) string {
	if idx := strings.IndexAny(tag, "-_"); idx > 0 {
		return tag[:idx]
	}
	return tag
}

// titleScore compares the media titles with the record title, also trying
// the title parsed out of a release-style record name.
func titleScore(d media.Descriptor, rec subtitles.Record) float64 {
	candidates := []string{rec.Title}
	if parsed := media.ParseFileName(rec.Title).Title; parsed != "" && parsed != rec.Title {
		candidates = append(candidates, parsed)
	}
	best := 0.0
	for _, want := range []string{d.Title, d.OriginalTitle} {
		if strings.TrimSpace(want) == "" {
			continue
		}
		for _, have := range candidates {
			best = math.Max(best, textutil.TitleSimilarity(want, have))
		}
	}
	return best
}

func yearScore(want, have int) float64 {
	if want <= 0 || have <= 0 {
		return 0.5
	}
	switch diff := abs(want - have); {
	case diff == 0:
		return 1.0
	case diff == 1:
		return 0.8
	case diff == 2:
		return 0.6
	case diff <= 5:
		return 0.4
	default:
		return 0.1
	}
}

func episodeScore(d media.Descriptor, rec subtitles.Record) float64 {
	season, okSeason := rec.MetaInt(subtitles.MetaSeason)
	episode, okEpisode := rec.MetaInt(subtitles.MetaEpisode)
	if okSeason && okEpisode {
		return boolScore(season == d.Season && episode == d.Episode)
	}
	if s, e, ok := parseSeasonEpisode(rec.Title); ok {
		return boolScore(s == d.Season && e == d.Episode)
	}
	return 0.3
}

func hasEpisodeInfo(rec subtitles.Record) bool {
	if _, ok := rec.Meta(subtitles.MetaSeason); ok {
		return true
	}
	if _, ok := rec.Meta(subtitles.MetaEpisode); ok {
		return true
	}
	_, _, ok := parseSeasonEpisode(rec.Title)
	return ok
}

func qualityScore(rec subtitles.Record) float64 {
	score := 0.0
	if rec.Rating > 0 {
		score += rec.Rating / 10 * 0.4
	}
	if rec.Downloads > 0 {
		score += math.Min(1, float64(rec.Downloads)/1000) * 0.3
	}
	score += rec.Source.TrustWeight()
	return math.Min(1, score)
}

func releaseGroupScore(d media.Descriptor, release string) float64 {
	want := d.ReleaseGroup
	have := firstGroup(releaseGroupPattern, release)
	if want == "" || have == "" {
		return 0.3
	}
	if strings.EqualFold(want, have) {
		return 1.0
	}
	return 0.1
}

func resolutionScore(d media.Descriptor, release string) float64 {
	want := d.Resolution
	have := firstGroup(resolutionPattern, release)
	if want == "" || have == "" {
		return 0.5
	}
	if strings.EqualFold(want, have) {
		return 1.0
	}
	return 0.2
}

func confidence(similarity float64, d media.Descriptor, rec subtitles.Record) float64 {
	c := similarity
	if !rec.Source.Known() {
		c *= 0.8
	}
	if rec.Rating < 5 && rec.Downloads < 100 {
		c *= 0.9
	}
	if d.IsEpisode() && !hasEpisodeInfo(rec) {
		c *= 0.7
	}
	if rec.Rating > 8 {
		c *= 1.1
	}
	if rec.Downloads > 1000 {
		c *= 1.05
	}
	if rec.Source == subtitles.SourceOpenSubtitles {
		c *= 1.02
	}
	return math.Min(1, c)
}

// releaseText is the string release hints are read from.
func releaseText(rec subtitles.Record) string {
	if release, ok := rec.Meta(subtitles.MetaRelease); ok {
		return stem(release)
	}
	return stem(rec.Title)
}

func parseSeasonEpisode(text string) (int, int, bool) {
	m := seasonEpisodePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	season, err1 := strconv.Atoi(m[1])
	episode, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return season, episode, true
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// stem drops a trailing subtitle or video extension so "-GROUP.srt" still
// exposes its group.
func stem(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		ext := strings.ToLower(name[idx+1:])
		if subtitles.ParseFormat(ext) != subtitles.FormatUnknown || videoExtensions[ext] {
			return name[:idx]
		}
	}
	return name
}

var videoExtensions = map[string]bool{
	"mkv": true, "mp4": true, "avi": true, "m4v": true, "mov": true, "ts": true, "wmv": true, "webm": true,
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
