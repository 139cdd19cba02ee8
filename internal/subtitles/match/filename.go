package match

import (
	"math"
	"sort"
	"strings"

	"subtrove/internal/media"
	"subtrove/internal/subtitles"
	"subtrove/internal/textutil"
)

// File-name matcher weights.
const (
	fileWeightTitle    = 40
	fileWeightYear     = 20
	fileWeightEpisode  = 25
	fileWeightLanguage = 15
	// maxFileNameConfidence caps confidence for matches made on a file name
	// alone.
	maxFileNameConfidence = 0.8
)

// ByFileName ranks records against a media file name when no descriptor is
// available. Results under MinSimilarity are dropped.
func ByFileName(fileName string, records []subtitles.Record, languages []string) []Result {
	info := media.ParseFileName(fileName)
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		var acc accumulator
		title := math.Max(textutil.TitleSimilarity(info.Title, rec.Title),
			textutil.TitleSimilarity(info.Title, media.ParseFileName(rec.Title).Title))
		acc.add("title", title, fileWeightTitle)

		recYear, _ := rec.MetaInt(subtitles.MetaYear)
		if info.Year > 0 {
			acc.add("year", yearScore(info.Year, recYear), fileWeightYear)
		}
		episodeMatch := false
		if info.Season > 0 && info.Episode > 0 {
			s, e, ok := parseSeasonEpisode(rec.Title)
			episodeMatch = ok && s == info.Season && e == info.Episode
			acc.add("episode", boolScore(episodeMatch), fileWeightEpisode)
		}
		acc.add("language", fileLanguageScore(rec.Language, languages), fileWeightLanguage)

		similarity := acc.value()
		if similarity < MinSimilarity {
			continue
		}
		result := Result{
			Record:     rec,
			Similarity: similarity,
			Confidence: math.Min(similarity, maxFileNameConfidence),
			Quality:    qualityScore(rec),
			Factors:    acc.factors,
		}
		if title > 0.8 {
			result.Reasons = append(result.Reasons, ReasonTitle)
		}
		if info.Year > 0 && recYear == info.Year {
			result.Reasons = append(result.Reasons, ReasonYear)
		}
		if episodeMatch {
			result.Reasons = append(result.Reasons, ReasonEpisode)
		}
		results = append(results, result)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results
}

func fileLanguageScore(have string, languages []string) float64 {
	have = strings.ToLower(strings.TrimSpace(have))
	if have == "" {
		return 0.3
	}
	for _, want := range languages {
		want = strings.ToLower(strings.TrimSpace(want))
		if want != "" && strings.HasPrefix(have, want) {
			return 1.0
		}
	}
	return 0.3
}
