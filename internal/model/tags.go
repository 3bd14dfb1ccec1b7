package model

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`#\w+`)

// ExtractTags returns the lowercased hashtags in text, first occurrence
// order, without duplicates.
func ExtractTags(text string) []string {
	matches := tagPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
