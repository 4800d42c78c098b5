package incidents

import (
	"slices"
	"strings"
)

// NormalizeTags trims, lowercases, deduplicates and sorts tags.
// Blank entries are dropped. Returns nil when nothing is left.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !IsValidTag(tag) {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	if len(out) == 0 {
		return nil
	}

	slices.Sort(out)
	return out
}

// IsValidTag reports whether tag has non-whitespace content.
func IsValidTag(tag string) bool {
	return strings.TrimSpace(tag) != ""
}

// MaxTags bounds the tags an incident may carry. Blank entries do not count.
const MaxTags = 20

// CountValidTags counts tags with non-whitespace content.
func CountValidTags(tags []string) int {
	n := 0
	for _, tag := range tags {
		if IsValidTag(tag) {
			n++
		}
	}
	return n
}

// TagsToString renders tags as "[a, b]".
func TagsToString(tags []string) string {
	return "[" + strings.Join(tags, ", ") + "]"
}
