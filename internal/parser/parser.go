// Package parser splits YAML frontmatter from Markdown content.
package parser

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	// Title is the frontmatter "title" value, empty when absent.
	Title string
}

// Parse extracts frontmatter and body from raw Markdown bytes. Content
// without a well-formed frontmatter block is returned entirely as body.
func Parse(data []byte) *Result {
	fm, body := splitFrontmatter(data)
	res := &Result{Frontmatter: fm, Body: body}
	if t, ok := fm["title"].(string); ok {
		res.Title = strings.TrimSpace(t)
	}
	return res
}

func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}
