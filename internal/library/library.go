// Package library assembles fetched records into a Library and applies the
// exclusion filter.
package library

import (
	"sort"
	"strings"

	"github.com/starford/marginalia/internal/models"
)

// Build indexes records by id. Records are processed in ascending id order;
// for repeated ids the later record in the input wins.
func Build(records []models.DocumentRecord) *models.Library {
	sorted := make([]models.DocumentRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	lib := models.NewLibrary()
	for i := range sorted {
		doc := &sorted[i]
		if prev, ok := lib.Documents[doc.ID]; ok {
			lib.HighlightCount -= len(prev.Highlights)
		}
		doc.SortHighlights()
		lib.Documents[doc.ID] = doc
		lib.Categories[doc.Category] = struct{}{}
		lib.HighlightCount += len(doc.Highlights)
	}
	return lib
}

// Filter drops records the user does not want mirrored.
type Filter struct {
	ExcludeTags      []string
	IncludeDeleted   bool
	IncludeDiscarded bool
}

// Stats counts what a Filter removed.
type Stats struct {
	DeletedDocuments    int
	ExcludedDocuments   int
	DiscardedHighlights int
}

// Apply returns a new Library without excluded documents and highlights.
// The input library is not modified.
func (f Filter) Apply(lib *models.Library) (*models.Library, Stats) {
	excluded := make(map[string]struct{}, len(f.ExcludeTags))
	for _, t := range f.ExcludeTags {
		excluded[normalizeTag(t)] = struct{}{}
	}

	var st Stats
	out := models.NewLibrary()
	for _, doc := range lib.Ordered() {
		if doc.IsDeleted && !f.IncludeDeleted {
			st.DeletedDocuments++
			continue
		}
		if hasExcludedTag(doc, excluded) {
			st.ExcludedDocuments++
			continue
		}
		kept := doc
		if !f.IncludeDiscarded {
			cp := *doc
			cp.Highlights = make([]models.Highlight, 0, len(doc.Highlights))
			for _, h := range doc.Highlights {
				if h.IsDiscard {
					st.DiscardedHighlights++
					continue
				}
				cp.Highlights = append(cp.Highlights, h)
			}
			kept = &cp
		}
		out.Documents[kept.ID] = kept
		out.Categories[kept.Category] = struct{}{}
		out.HighlightCount += len(kept.Highlights)
	}
	return out, st
}

func hasExcludedTag(doc *models.DocumentRecord, excluded map[string]struct{}) bool {
	if len(excluded) == 0 {
		return false
	}
	for _, t := range doc.Tags {
		if _, ok := excluded[normalizeTag(t.Name)]; ok {
			return true
		}
	}
	return false
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
}
