// Package strings provides string slice helpers shared by the catalog and
// flow configuration parsing.
package strings

import (
	"strings"
)

// Normalize trims each value, applies fn (when non-nil) and drops empty
// results and duplicates. Order of first occurrence is preserved.
//
//	Normalize([]string{" us", "US ", "", "ca"}, strings.ToUpper)
//	// []string{"US", "CA"}
func Normalize(values []string, fn func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fn != nil {
			v = fn(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// DedupeFold drops values that equal an earlier one ignoring case and
// surrounding space. The first spelling wins.
//
//	DedupeFold([]string{"PP", "pp", " DL"})
//	// []string{"PP", "DL"}
func DedupeFold(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, v)
	}
	return result
}

// ContainsFold reports whether values holds target ignoring case.
func ContainsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
