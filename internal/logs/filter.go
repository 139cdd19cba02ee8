package logs

import (
	"encoding/json"
	"strings"

	"subtrove/internal/logging"
)

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects log entries. Zero fields match everything.
type Filter struct {
	// MinLevel drops entries below debug, info, warn, or error.
	MinLevel  string
	Component string
	RequestID string
	MediaID   string
	Search    string
}

// Empty reports whether the filter matches every line.
func (f Filter) Empty() bool {
	return strings.TrimSpace(f.MinLevel) == "" &&
		strings.TrimSpace(f.Component) == "" &&
		strings.TrimSpace(f.RequestID) == "" &&
		strings.TrimSpace(f.MediaID) == "" &&
		strings.TrimSpace(f.Search) == ""
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if f.Empty() {
		return true
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return false
	}
	if floor := strings.ToLower(strings.TrimSpace(f.MinLevel)); floor != "" {
		want, ok := levelRank[floor]
		if !ok {
			return false
		}
		if have, ok := levelRank[field(entry, "level")]; !ok || have < want {
			return false
		}
	}
	if !equalFold(f.Component, field(entry, logging.FieldComponent)) ||
		!equalFold(f.RequestID, field(entry, logging.FieldCorrelationID)) ||
		!equalFold(f.MediaID, field(entry, logging.FieldMediaID)) {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		return strings.Contains(strings.ToLower(line), search)
	}
	return true
}

func field(entry map[string]any, key string) string {
	value, _ := entry[key].(string)
	return strings.ToLower(value)
}

func equalFold(want, have string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, have)
}
