package match

import "subtrove/internal/subtitles"

// Similarity thresholds.
const (
	MinSimilarity  = 0.3
	FairMatch      = 0.5
	GoodMatch      = 0.7
	ExcellentMatch = 0.9
)

// Tier classifies a similarity score.
type Tier string

const (
	TierPoor      Tier = "poor"
	TierFair      Tier = "fair"
	TierGood      Tier = "good"
	TierExcellent Tier = "excellent"
)

// TierOf maps a similarity onto its tier.
func TierOf(similarity float64) Tier {
	switch {
	case similarity >= ExcellentMatch:
		return TierExcellent
	case similarity >= GoodMatch:
		return TierGood
	case similarity >= FairMatch:
		return TierFair
	default:
		return TierPoor
	}
}

// Reason tags why a candidate scored well.
type Reason string

const (
	ReasonExcellentMatch Reason = "excellent_match"
	ReasonGoodMatch      Reason = "good_match"
	ReasonTitle          Reason = "title_match"
	ReasonYear           Reason = "year_match"
	ReasonEpisode        Reason = "episode_match"
	ReasonHighRating     Reason = "high_rating"
	ReasonPopular        Reason = "popular"
)

// Factor is one weighted sub-score.
type Factor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Result pairs a record with its scores. Quality is the quality sub-score,
// kept for tie-breaking.
type Result struct {
	Record     subtitles.Record `json:"record"`
	Similarity float64          `json:"similarity"`
	Confidence float64          `json:"confidence"`
	Quality    float64          `json:"quality"`
	Reasons    []Reason         `json:"reasons,omitempty"`
	Factors    []Factor         `json:"factors,omitempty"`
}

// Tier returns the result's similarity tier.
func (r Result) Tier() Tier { return TierOf(r.Similarity) }

// IsGood reports whether the result reaches the good tier.
func (r Result) IsGood() bool { return r.Similarity >= GoodMatch }

// IsExcellent reports whether the result reaches the excellent tier.
func (r Result) IsExcellent() bool { return r.Similarity >= ExcellentMatch }

type accumulator struct {
	factors []Factor
	score   float64
	weight  float64
}

func (a *accumulator) add(name string, score, weight float64) {
	a.factors = append(a.factors, Factor{Name: name, Score: score, Weight: weight})
	a.score += score * weight
	a.weight += weight
}

func (a *accumulator) value() float64 {
	if a.weight == 0 {
		return 0
	}
	return a.score / a.weight
}
