// Package parser splits Markdown files into their frontmatter and body.
package parser

import (
	"bytes"
	"strings"

	"github.com/starford/marginalia/internal/frontmatter"
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	// Frontmatter is never nil; it is empty when the file has none.
	Frontmatter    *frontmatter.Frontmatter
	HasFrontmatter bool
	Body           string
	Title          string
}

// Identity returns the value of the tracking property, or "".
func (r *Result) Identity(prop string) string {
	if prop == "" {
		return ""
	}
	return r.Frontmatter.GetString(prop)
}

// Parse extracts frontmatter and body from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, ok := splitFrontmatter(data)
	if !ok {
		fm = frontmatter.New()
	}
	return &Result{
		Frontmatter:    fm,
		HasFrontmatter: ok,
		Body:           body,
		Title:          deriveTitle(fm, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- lines)
// from the Markdown body. If no valid frontmatter is found the entire content
// is body.
func splitFrontmatter(data []byte) (*frontmatter.Frontmatter, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim+"\n")) && !bytes.HasPrefix(trimmed, []byte(delim+"\r\n")) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	end := closingFence(rest)
	if end < 0 {
		// No closing delimiter, so everything is body.
		return nil, string(data), false
	}

	yamlBlock := rest[:end]
	afterDelim := rest[end+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	fm, err := frontmatter.Parse(string(yamlBlock))
	if err != nil {
		// Invalid YAML: body only, no error.
		return nil, string(data), false
	}
	return fm, body, true
}

// closingFence returns the index of the newline that starts the closing ---
// line, or -1. The fence line must contain nothing but the delimiter.
func closingFence(rest []byte) int {
	off := 0
	for {
		i := bytes.Index(rest[off:], []byte("\n---"))
		if i < 0 {
			return -1
		}
		pos := off + i
		after := rest[pos+4:]
		if len(after) == 0 || after[0] == '\n' || after[0] == '\r' {
			return pos
		}
		off = pos + 4
	}
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm *frontmatter.Frontmatter, body string) string {
	if s := fm.GetString("title"); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
