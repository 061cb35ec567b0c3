package processor

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeTags trims, case-folds, and de-duplicates tag names. Order follows
// first appearance. style is "title" or anything else for lower case.
func NormalizeTags(tags []Tag, style string) []string {
	var caser cases.Caser
	if style == "title" {
		caser = cases.Title(language.Und)
	} else {
		caser = cases.Lower(language.Und)
	}
	fold := cases.Fold()

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		name := strings.Join(strings.Fields(tag.Name), " ")
		if name == "" {
			continue
		}
		key := fold.String(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, caser.String(name))
	}
	return out
}
