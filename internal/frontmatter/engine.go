package frontmatter

import (
	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
)

// previewBytes bounds the rendered text quoted back in a TemplateError.
const previewBytes = 500

// rawFields are passed to the template without YAML escaping.
var rawFields = map[string]struct{}{
	"created":          {},
	"updated":          {},
	"last_highlighted": {},
	"highlights":       {},
}

// Options configures an Engine.
type Options struct {
	Template         string
	TrackFiles       bool
	TrackingProperty string
	MultilineFields  []string
}

// Engine renders the frontmatter record of a document.
type Engine struct {
	renderer  render.Renderer
	opts      Options
	multiline map[string]struct{}
}

// NewEngine creates an Engine. An empty template selects the default one.
func NewEngine(r render.Renderer, opts Options) *Engine {
	if opts.Template == "" {
		opts.Template = render.DefaultFrontmatterTemplate
	}
	ml := make(map[string]struct{}, len(opts.MultilineFields))
	for _, f := range opts.MultilineFields {
		ml[f] = struct{}{}
	}
	return &Engine{renderer: r, opts: opts, multiline: ml}
}

// TrackingProperty returns the frontmatter key holding document identity, or
// "" when tracking is off.
func (e *Engine) TrackingProperty() string {
	if !e.opts.TrackFiles {
		return ""
	}
	return e.opts.TrackingProperty
}

// Render expands the template for doc and parses the result. A result that is
// not a YAML mapping is returned as *apperr.TemplateError.
func (e *Engine) Render(doc *models.DisplayDocument) (*Frontmatter, error) {
	text, err := e.renderer.Render(e.opts.Template, e.EscapedFields(doc))
	if err != nil {
		return nil, &apperr.TemplateError{Err: err}
	}
	text = StripFences(text)
	if e.opts.TrackFiles {
		text = EnsureTrackingProperty(text, e.opts.TrackingProperty, EscapeValue(doc.Identity(), false))
	}
	fm, err := Parse(text)
	if err != nil {
		return nil, &apperr.TemplateError{Preview: apperr.Preview(text, previewBytes), Err: err}
	}
	return fm, nil
}

// EscapedFields returns the display fields with string values prepared for
// embedding in YAML.
func (e *Engine) EscapedFields(doc *models.DisplayDocument) map[string]any {
	fields := render.Fields(doc)
	for k, v := range fields {
		if _, ok := rawFields[k]; ok {
			continue
		}
		_, ml := e.multiline[k]
		switch val := v.(type) {
		case string:
			fields[k] = EscapeValue(val, ml)
		case []string:
			esc := make([]string, len(val))
			for i, s := range val {
				esc[i] = EscapeValue(s, false)
			}
			fields[k] = esc
		}
	}
	return fields
}
