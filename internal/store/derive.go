package store

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/starford/marknest/internal/parser"
)

var titleCaser = cases.Title(language.Und)

// DeriveTitle turns a logical path into a display title:
// "algorithms/quick-sort.md" → "Quick Sort".
func DeriveTitle(logical string) string {
	base := path.Base(logical)
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	words := strings.Fields(stem)
	if len(words) == 0 {
		return base
	}
	return titleCaser.String(strings.Join(words, " "))
}

// resolveTitle picks the explicit title, then the frontmatter title, then
// the filename-derived one.
func resolveTitle(explicit, logical string, doc *parser.Result) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if doc != nil && doc.Title != "" {
		return doc.Title
	}
	return DeriveTitle(logical)
}

// Preview returns the first n characters of the note body on a single line.
// The text is kept as written; angle brackets and entities are not markup here.
func (db *DB) Preview(body string) string {
	return makePreview(flatten(body), db.previewLen)
}

func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func makePreview(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
