// Package render expands user templates against document display fields.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Renderer turns a template and a metadata record into text.
type Renderer interface {
	Render(tmpl string, data map[string]any) (string, error)
}

// TextTemplate is a Renderer backed by text/template. Parsed templates are
// cached by source text. Missing variables are errors.
type TextTemplate struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewTextTemplate returns an empty TextTemplate renderer.
func NewTextTemplate() *TextTemplate {
	return &TextTemplate{cache: make(map[string]*template.Template)}
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"quote": func(s string) string { return strings.ReplaceAll(s, "\n", "\n> ") },
	"trim":  strings.TrimSpace,
}

func (r *TextTemplate) Render(tmpl string, data map[string]any) (string, error) {
	t, err := r.parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}

func (r *TextTemplate) parse(tmpl string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.cache[tmpl]; ok {
		return t, nil
	}
	t, err := template.New("doc").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	r.cache[tmpl] = t
	return t, nil
}
