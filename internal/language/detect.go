package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

const minDetectConfidence = 0.5

// DetectContent guesses the language of subtitle text. Chinese text is split
// into simplified or traditional by counting characters unique to each script.
// The boolean is false when the detector is not confident.
func DetectContent(text string) (string, bool) {
	text = stripMarkup(text)
	if strings.TrimSpace(text) == "" {
		return Unknown, false
	}
	info := whatlanggo.Detect(text)
	if info.Confidence < minDetectConfidence {
		return Unknown, false
	}
	iso := info.Lang.Iso6391()
	if iso == "" {
		return Unknown, false
	}
	if iso == "zh" {
		return chineseScript(text), true
	}
	return Canonical(iso), true
}

// A handful of high frequency characters whose forms differ between scripts.
const (
	simplifiedOnly  = "们这说时来个会为国过还对后么开见经问进话没现长东车门马鸟认让"
	traditionalOnly = "們這說時來個會為國過還對後麼開見經問進話沒現長東車門馬鳥認讓"
)

func chineseScript(text string) string {
	var simplified, traditional int
	for _, r := range text {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		switch {
		case strings.ContainsRune(simplifiedOnly, r):
			simplified++
		case strings.ContainsRune(traditionalOnly, r):
			traditional++
		}
	}
	if traditional > simplified {
		return TraditionalChinese
	}
	return SimplifiedChinese
}

// stripMarkup removes SRT cue numbers, timing lines, and tags so only dialogue
// reaches the detector.
func stripMarkup(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "-->") || isDigits(line) {
			continue
		}
		if strings.HasPrefix(line, "Dialogue:") {
			if idx := strings.LastIndex(line, ",,"); idx >= 0 {
				line = line[idx+2:]
			}
		}
		if strings.HasPrefix(line, "[") || strings.Contains(line, "Style:") {
			continue
		}
		b.WriteString(removeTags(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func removeTags(line string) string {
	var b strings.Builder
	depth := 0
	for _, r := range line {
		switch r {
		case '<', '{':
			depth++
		case '>', '}':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
