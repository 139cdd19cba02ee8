package language

import (
	"strings"
	"unicode"
)

type keywordRule struct {
	tag      string
	tokens   []string
	contains []string
}

// Order matters: traditional Chinese hints must win over the generic "chinese".
var fileNameRules = []keywordRule{
	{TraditionalChinese, []string{"cht", "tw", "traditional", "big5", "zh-tw", "zh-hant"}, []string{"繁体", "繁中", "繁體"}},
	{SimplifiedChinese, []string{"zh", "chinese", "chs", "cn", "gb", "zh-cn", "zh-hans", "chi", "zho"}, []string{"简体", "简中", "中文", "中字"}},
	{"en", []string{"en", "english", "eng"}, nil},
	{"ja", []string{"ja", "japanese", "jp", "jpn"}, []string{"日文", "日语"}},
	{"ko", []string{"ko", "korean", "kr", "kor"}, []string{"韩文", "韩语"}},
}

// FromFileName infers a subtitle language from the tokens of a file name,
// typically the part following the video's base name (movie.chs.srt). It
// returns Unknown when no keyword matches.
func FromFileName(name string) string {
	lower := strings.ToLower(name)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	set := make(map[string]struct{}, len(tokens)*2)
	for _, token := range tokens {
		set[token] = struct{}{}
		for _, part := range strings.Split(token, "-") {
			if part != "" {
				set[part] = struct{}{}
			}
		}
	}
	for _, rule := range fileNameRules {
		for _, hint := range rule.contains {
			if strings.Contains(name, hint) {
				return rule.tag
			}
		}
		for _, token := range rule.tokens {
			if _, ok := set[token]; ok {
				return rule.tag
			}
		}
	}
	return Unknown
}

// FileNameHints returns the keywords that mark a packaged file as carrying
// the given language. Used when choosing a file out of a subtitle archive.
func FileNameHints(tag string) []string {
	canonical := Canonical(tag)
	var hints []string
	for _, rule := range fileNameRules {
		if rule.tag == canonical || ToISO2(rule.tag) == ToISO2(canonical) {
			hints = append(hints, rule.contains...)
			hints = append(hints, rule.tokens...)
		}
	}
	return hints
}
