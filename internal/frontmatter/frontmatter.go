// Package frontmatter reads and writes the "key: value" directives carried by
// the first prose cell of a notebook.
package frontmatter

import (
	"strings"

	"nbpress/internal/notebook"
)

// Well-known directive keys.
const (
	KeyPostID    = "PostId"
	KeyTitle     = "Title"
	KeyGithubURL = "GithubUrl"
	KeyFileName  = "FileName"
)

// Map is the folded view of a front-matter cell. Later lines override earlier
// lines with the same key.
type Map map[string]string

// Get returns the trimmed value for key and whether it was present and
// non-empty.
func (m Map) Get(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Extract parses the first cell of doc. It reports false when the document
// has no cells or the first cell is not prose.
func Extract(doc *notebook.Document) (Map, bool) {
	first, ok := doc.First()
	if !ok || first.Kind != notebook.KindProse {
		return nil, false
	}
	return Parse(first.Source), true
}

// Parse folds every "key: value" line of source into a Map. Lines are split
// on the first colon only; lines without a colon are skipped.
func Parse(source string) Map {
	out := Map{}
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSuffix(line, "\r")
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		out[strings.Trim(key, " ")] = strings.Trim(value, " ")
	}
	return out
}

// Directive is one synthetic front-matter line.
type Directive struct {
	Key   string
	Value string
}

// Directives is an ordered list of synthetic front-matter lines.
type Directives []Directive

// Render formats the directives as newline-separated "key: value" lines.
func (ds Directives) Render() string {
	lines := make([]string, 0, len(ds))
	for _, d := range ds {
		lines = append(lines, d.Key+": "+d.Value)
	}
	return strings.Join(lines, "\n")
}

// Cell returns the prose cell holding the rendered directives.
func (ds Directives) Cell() notebook.Cell {
	return notebook.NewProseCell(ds.Render())
}
