// Package models defines the domain types for Marginalia.
package models

import (
	"sort"
	"time"
)

// Tag is a remote tag attached to a document or highlight.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Highlight is one immutable annotation inside a document. It is replaced
// wholesale whenever its document is re-fetched.
type Highlight struct {
	ID            int64      `json:"id"`
	Text          string     `json:"text"`
	Note          string     `json:"note"`
	Location      *int       `json:"location"`
	LocationType  string     `json:"location_type"`
	Color         string     `json:"color"`
	URL           *string    `json:"url"`
	Tags          []Tag      `json:"tags"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	HighlightedAt *time.Time `json:"highlighted_at"`
	IsFavorite    bool       `json:"is_favorite"`
	IsDiscard     bool       `json:"is_discard"`
	ReadwiseURL   string     `json:"readwise_url"`
}

// Position returns the highlight's ordinal location, or -1 when unknown.
func (h Highlight) Position() int {
	if h.Location == nil {
		return -1
	}
	return *h.Location
}

// DocumentRecord is one source item (book, article, tweet, ...). ID is the
// only field that is stable across title or author edits.
type DocumentRecord struct {
	ID            int64       `json:"user_book_id"`
	Title         string      `json:"title"`
	ReadableTitle string      `json:"readable_title"`
	Author        string      `json:"author"`
	Source        string      `json:"source"`
	Category      string      `json:"category"`
	DocumentNote  string      `json:"document_note"`
	Summary       string      `json:"summary"`
	CoverImageURL string      `json:"cover_image_url"`
	CanonicalURL  string      `json:"readwise_url"`
	UniqueURL     *string     `json:"unique_url"`
	SourceURL     *string     `json:"source_url"`
	ASIN          *string     `json:"asin"`
	IsDeleted     bool        `json:"is_deleted"`
	Tags          []Tag       `json:"book_tags"`
	Highlights    []Highlight `json:"highlights"`
}

// Identity returns the strong identity used for file tracking.
func (d *DocumentRecord) Identity() string {
	return d.CanonicalURL
}

// TagNames returns the document-level tag names in remote order.
func (d *DocumentRecord) TagNames() []string {
	out := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		out = append(out, t.Name)
	}
	return out
}

// SortHighlights orders highlights by location, then by id.
func (d *DocumentRecord) SortHighlights() {
	sort.SliceStable(d.Highlights, func(i, j int) bool {
		a, b := d.Highlights[i], d.Highlights[j]
		if a.Position() != b.Position() {
			return a.Position() < b.Position()
		}
		return a.ID < b.ID
	})
}

// DisplayDocument is a DocumentRecord plus the derived fields used by templates.
type DisplayDocument struct {
	*DocumentRecord

	SanitizedTitle  string
	FormattedAuthor string
	FormattedTags   string
	TagStrings      []string
	Created         string
	Updated         string
	LastHighlighted string

	CreatedAt time.Time
	UpdatedAt time.Time
}
