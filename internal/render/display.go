package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/starford/marginalia/internal/models"
)

// MaxTitleBytes bounds sanitized titles so basenames stay within common
// filesystem limits.
const MaxTitleBytes = 250

const dateLayout = "2006-01-02"

var (
	strict       = bluemonday.StrictPolicy()
	illegalChars = regexp.MustCompile(`[\\/:*?"<>|#^\[\]]`)
	spaceRun     = regexp.MustCompile(`\s+`)
	authorSplit  = regexp.MustCompile(`,\s*|\s+and\s+|\s*&\s*`)
)

// StripHTML removes markup from remote text and decodes entities.
func StripHTML(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// SanitizeTitle produces a title usable as a file basename.
func SanitizeTitle(title string, id int64) string {
	t := StripHTML(title)
	t = illegalChars.ReplaceAllString(t, "")
	t = strings.TrimSpace(spaceRun.ReplaceAllString(t, " "))
	t = strings.Trim(t, ".")
	if len(t) > MaxTitleBytes {
		t = t[:MaxTitleBytes]
		for !utf8.ValidString(t) {
			t = t[:len(t)-1]
		}
		t = strings.TrimSpace(t)
	}
	if t == "" {
		return fmt.Sprintf("Untitled %d", id)
	}
	return t
}

// FormatAuthor turns "A, B and C" into "[[A]], [[B]], [[C]]".
func FormatAuthor(author string) string {
	author = strings.TrimSpace(StripHTML(author))
	if author == "" {
		return ""
	}
	var out []string
	for _, a := range authorSplit.Split(author, -1) {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		out = append(out, "[["+a+"]]")
	}
	return strings.Join(out, ", ")
}

// TagString renders a tag name as an inline hashtag.
func TagString(name string) string {
	return "#" + strings.ReplaceAll(strings.TrimSpace(name), " ", "-")
}

// Display derives the template-facing fields of a document.
func Display(doc *models.DocumentRecord) *models.DisplayDocument {
	d := &models.DisplayDocument{
		DocumentRecord:  doc,
		SanitizedTitle:  SanitizeTitle(titleOf(doc), doc.ID),
		FormattedAuthor: FormatAuthor(doc.Author),
	}
	for _, t := range doc.Tags {
		d.TagStrings = append(d.TagStrings, TagString(t.Name))
	}
	d.FormattedTags = strings.Join(d.TagStrings, " ")

	var lastHighlighted time.Time
	for _, h := range doc.Highlights {
		if !h.CreatedAt.IsZero() && (d.CreatedAt.IsZero() || h.CreatedAt.Before(d.CreatedAt)) {
			d.CreatedAt = h.CreatedAt
		}
		if h.UpdatedAt.After(d.UpdatedAt) {
			d.UpdatedAt = h.UpdatedAt
		}
		if h.HighlightedAt != nil && h.HighlightedAt.After(lastHighlighted) {
			lastHighlighted = *h.HighlightedAt
		}
	}
	d.Created = formatDate(d.CreatedAt)
	d.Updated = formatDate(d.UpdatedAt)
	d.LastHighlighted = formatDate(lastHighlighted)
	return d
}

func titleOf(doc *models.DocumentRecord) string {
	if doc.ReadableTitle != "" {
		return doc.ReadableTitle
	}
	return doc.Title
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// Fields is the metadata record handed to templates. String values are raw
// display text; callers that embed them in YAML escape them first.
func Fields(d *models.DisplayDocument) map[string]any {
	highlights := make([]map[string]any, 0, len(d.Highlights))
	for _, h := range d.Highlights {
		tags := make([]string, 0, len(h.Tags))
		for _, t := range h.Tags {
			tags = append(tags, TagString(t.Name))
		}
		url := ""
		if h.URL != nil {
			url = *h.URL
		}
		highlights = append(highlights, map[string]any{
			"id":            h.ID,
			"text":          StripHTML(h.Text),
			"note":          StripHTML(h.Note),
			"location":      h.Position(),
			"location_type": h.LocationType,
			"color":         h.Color,
			"url":           url,
			"tags":          strings.Join(tags, " "),
			"is_favorite":   h.IsFavorite,
			"readwise_url":  h.ReadwiseURL,
		})
	}
	return map[string]any{
		"id":               d.ID,
		"title":            StripHTML(titleOf(d.DocumentRecord)),
		"sanitized_title":  d.SanitizedTitle,
		"author":           d.FormattedAuthor,
		"category":         d.Category,
		"source":           d.Source,
		"url":              d.CanonicalURL,
		"source_url":       deref(d.SourceURL),
		"unique_url":       deref(d.UniqueURL),
		"asin":             deref(d.ASIN),
		"cover_image_url":  d.CoverImageURL,
		"document_note":    StripHTML(d.DocumentNote),
		"summary":          StripHTML(d.Summary),
		"tags":             d.FormattedTags,
		"tag_list":         d.TagStrings,
		"num_highlights":   len(d.Highlights),
		"created":          d.Created,
		"updated":          d.Updated,
		"last_highlighted": d.LastHighlighted,
		"highlights":       highlights,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
