package registry

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// DisplayNameFor derives a human label from a slug when a source omits one,
// e.g. "blog_posts" becomes "Blog Posts".
func DisplayNameFor(slug string) string {
	return titleCaser.String(strings.ReplaceAll(slug, "_", " "))
}

func crudLabel(action string, e EntityConfig) string {
	name := e.DisplayName
	plural := e.PluralName
	if name == "" {
		name = DisplayNameFor(e.Slug)
	}
	if plural == "" {
		plural = name
	}
	switch action {
	case "list":
		return "List " + plural
	default:
		return titleCaser.String(action) + " " + name
	}
}
