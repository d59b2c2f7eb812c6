// Package strings holds the list parsing shared by configuration and test steps.
package strings

import "strings"

// SplitList splits s on sep and returns the trimmed, non-empty items in first-seen order
// without repeats. An empty s yields nil.
func SplitList(s, sep string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, item := range strings.Split(s, sep) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
