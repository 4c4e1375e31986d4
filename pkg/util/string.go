package util

import (
	"strings"
	"unicode/utf8"
)

// ParseTags splits a comma-separated tag string into clean tag values.
func ParseTags(tagStr string) []string {
	if tagStr == "" {
		return []string{}
	}

	tagStr = strings.Trim(tagStr, "[]")

	tags := strings.Split(tagStr, ",")
	var cleanTags []string

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "\"'")
		if tag != "" {
			cleanTags = append(cleanTags, tag)
		}
	}

	return cleanTags
}

// Truncate shortens s to at most limit runes, appending an ellipsis when it
// had to cut. Error messages persisted to the database go through this.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
