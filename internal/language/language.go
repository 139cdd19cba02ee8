package language

import "strings"

// Unknown is the tag assigned when no language can be inferred.
const Unknown = "unknown"

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"zh", "zho", "chi", "中文", []string{"chinese"}},
	{"ja", "jpn", "", "日本語", []string{"japanese"}},
	{"ko", "kor", "", "한국어", []string{"korean"}},
	{"es", "spa", "", "Español", []string{"spanish"}},
	{"fr", "fra", "fre", "Français", []string{"french"}},
	{"de", "deu", "ger", "Deutsch", []string{"german"}},
	{"it", "ita", "", "Italiano", []string{"italian"}},
	{"pt", "por", "", "Português", []string{"portuguese"}},
	{"ru", "rus", "", "Русский", []string{"russian"}},
	{"ar", "ara", "", "العربية", []string{"arabic"}},
	{"nl", "nld", "dut", "Nederlands", []string{"dutch"}},
	{"pl", "pol", "", "Polski", []string{"polish"}},
	{"sv", "swe", "", "Svenska", []string{"swedish"}},
	{"th", "tha", "", "ไทย", []string{"thai"}},
	{"vi", "vie", "", "Tiếng Việt", []string{"vietnamese"}},
}

// Chinese variants carry their own canonical tags.
const (
	SimplifiedChinese  = "zh-cn"
	TraditionalChinese = "zh-tw"
)

var chineseVariants = map[string]string{
	"zh-cn":   SimplifiedChinese,
	"zh-hans": SimplifiedChinese,
	"zh-sg":   SimplifiedChinese,
	"chs":     SimplifiedChinese,
	"zh-tw":   TraditionalChinese,
	"zh-hant": TraditionalChinese,
	"zh-hk":   TraditionalChinese,
	"cht":     TraditionalChinese,
	"ze":      TraditionalChinese,
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// ToISO2 converts any recognized language code or word to ISO 639-1 (2-letter).
// Regional tags such as zh-cn or en-us reduce to their base language.
// Returns empty string for unrecognized input.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if _, ok := chineseVariants[code]; ok {
		return "zh"
	}
	if base, _, found := strings.Cut(code, "-"); found {
		code = base
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// ToISO3 converts any recognized language code to ISO 639-2 (3-letter).
// Returns "und" for unrecognized 2-letter codes, passes through 3-letter codes.
func ToISO3(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "und"
	}
	if iso2 := ToISO2(code); iso2 != "" {
		if e := lookup(iso2); e != nil {
			return e.code3
		}
	}
	if len(code) == 3 {
		return code
	}
	return "und"
}

// Canonical maps provider and user supplied codes onto the subtitle tags used
// throughout the cache: zh-cn and zh-tw for Chinese variants, ISO 639-1 for
// everything else. Plain "zh" and Chinese word forms map to zh-cn.
func Canonical(code string) string {
	code = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(code, "_", "-")))
	if code == "" || code == Unknown {
		return code
	}
	if tag, ok := chineseVariants[code]; ok {
		return tag
	}
	iso2 := ToISO2(code)
	switch iso2 {
	case "":
		return code
	case "zh":
		return SimplifiedChinese
	default:
		return iso2
	}
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or the uppercased code for unrecognized input.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || strings.EqualFold(trimmed, Unknown) {
		return "Unknown"
	}
	switch Canonical(trimmed) {
	case SimplifiedChinese:
		return "简体中文"
	case TraditionalChinese:
		return "繁体中文"
	}
	if e := lookup(ToISO2(trimmed)); e != nil {
		return e.display
	}
	return strings.ToUpper(trimmed)
}

// Matches reports whether a subtitle language satisfies a wanted language:
// equal canonical tags, or a shared base language when either side is a
// bare ISO 639-1 code.
func Matches(have, want string) bool {
	have, want = Canonical(have), Canonical(want)
	if have == "" || want == "" {
		return false
	}
	if have == want {
		return true
	}
	return strings.HasPrefix(have, want) || strings.HasPrefix(want, have)
}

// NormalizeList deduplicates and canonicalizes a list of language codes.
func NormalizeList(languages []string) []string {
	if len(languages) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		tag := Canonical(lang)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}
	return normalized
}
