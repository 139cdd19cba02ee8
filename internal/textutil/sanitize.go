package textutil

import "strings"

// SanitizeComponent keeps the first limit runes of value and replaces every
// rune outside [A-Za-z0-9._-] with an underscore. Case is preserved, so the
// result is usable as part of a cache file name on any filesystem.
func SanitizeComponent(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if limit > 0 && len(runes) > limit {
		runes = runes[:limit]
	}
	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		if safeRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

func safeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return r == '-' || r == '_' || r == '.'
}
