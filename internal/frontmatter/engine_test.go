package frontmatter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
)

func sampleDoc() *models.DisplayDocument {
	loc := 3
	created := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	return render.Display(&models.DocumentRecord{
		ID:           7,
		Title:        "Deep Work: Rules",
		Author:       "Cal Newport",
		Category:     "books",
		CanonicalURL: "https://readwise.io/bookreview/7",
		DocumentNote: "first line\nsecond line",
		Tags:         []models.Tag{{ID: 1, Name: "focus"}},
		Highlights: []models.Highlight{{
			ID: 70, Text: "quote", Location: &loc,
			CreatedAt: created, UpdatedAt: created.Add(24 * time.Hour),
		}},
	})
}

func TestEngine_DefaultTemplate(t *testing.T) {
	e := NewEngine(render.NewTextTemplate(), Options{TrackFiles: true, TrackingProperty: "uri"})
	fm, err := e.Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if fm.GetString("title") != "Deep Work: Rules" {
		t.Errorf("title = %q", fm.GetString("title"))
	}
	if fm.GetString("author") != "[[Cal Newport]]" {
		t.Errorf("author = %q", fm.GetString("author"))
	}
	if fm.GetString("uri") != "https://readwise.io/bookreview/7" {
		t.Errorf("uri = %q", fm.GetString("uri"))
	}
	tags, _ := fm.Get("tags")
	if list, ok := tags.([]any); !ok || len(list) != 1 || list[0] != "#focus" {
		t.Errorf("tags = %#v", tags)
	}
	if fm.GetString("created") != "2024-01-02" || fm.GetString("updated") != "2024-01-03" {
		t.Errorf("dates = %q %q", fm.GetString("created"), fm.GetString("updated"))
	}
	if e.TrackingProperty() != "uri" {
		t.Errorf("TrackingProperty = %q", e.TrackingProperty())
	}
}

func TestEngine_NoTracking(t *testing.T) {
	e := NewEngine(render.NewTextTemplate(), Options{TrackingProperty: "uri"})
	fm, err := e.Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if fm.Has("uri") {
		t.Error("uri should not be injected when tracking is off")
	}
	if e.TrackingProperty() != "" {
		t.Error("TrackingProperty should be empty when tracking is off")
	}
}

func TestEngine_TemplateDuplicatesTrackingLine(t *testing.T) {
	tmpl := "uri: {{.url}}\ntitle: {{.title}}\nuri: {{.url}}\n"
	e := NewEngine(render.NewTextTemplate(), Options{Template: tmpl, TrackFiles: true, TrackingProperty: "uri"})
	fm, err := e.Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Join(fm.Keys(), ",") != "uri,title" {
		t.Errorf("keys = %v", fm.Keys())
	}
}

func TestEngine_MultilineField(t *testing.T) {
	tmpl := "note: {{.document_note}}\n"
	e := NewEngine(render.NewTextTemplate(), Options{Template: tmpl, MultilineFields: []string{"document_note"}})
	fm, err := e.Render(sampleDoc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if fm.GetString("note") != "first line\nsecond line\n" {
		t.Errorf("note = %q", fm.GetString("note"))
	}
}

func TestEngine_InvalidResult(t *testing.T) {
	e := NewEngine(render.NewTextTemplate(), Options{Template: "title: {{.title}}\n  broken: [\n"})
	_, err := e.Render(sampleDoc())
	var te *apperr.TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TemplateError", err)
	}
	if !strings.Contains(te.Preview, "broken") {
		t.Errorf("preview = %q", te.Preview)
	}
}

func TestEngine_NotAMapping(t *testing.T) {
	e := NewEngine(render.NewTextTemplate(), Options{Template: "{{.title}}\n"})
	_, err := e.Render(sampleDoc())
	var te *apperr.TemplateError
	if !errors.As(err, &te) || !errors.Is(err, ErrNotMapping) {
		t.Fatalf("err = %v, want TemplateError wrapping ErrNotMapping", err)
	}
}

func TestEngine_MissingVariable(t *testing.T) {
	e := NewEngine(render.NewTextTemplate(), Options{Template: "x: {{.nope}}\n"})
	_, err := e.Render(sampleDoc())
	var te *apperr.TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TemplateError", err)
	}
}
