package search

import "subtrove/internal/subtitles"

// keep applies the request's quality filters. Unrated records pass the
// rating floor.
func keep(req subtitles.SearchRequest, rec subtitles.Record) bool {
	if req.MinRating > 0 && rec.Rating > 0 && rec.Rating < req.MinRating {
		return false
	}
	if req.OnlyHD && !rec.MetaBool(subtitles.MetaHD) {
		return false
	}
	if req.ExcludeMachineTranslated && rec.MetaBool(subtitles.MetaMachineTranslated) {
		return false
	}
	if !req.IncludeHearingImpaired && rec.MetaBool(subtitles.MetaHearingImpaired) {
		return false
	}
	return true
}

func filter(req subtitles.SearchRequest, records []subtitles.Record) []subtitles.Record {
	out := records[:0]
	for _, rec := range records {
		if keep(req, rec) {
			out = append(out, rec)
		}
	}
	return out
}
