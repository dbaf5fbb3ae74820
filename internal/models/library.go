package models

import "sort"

// Library is the snapshot assembled from one sync pass. It is rebuilt every
// pass and never persisted.
type Library struct {
	Categories     map[string]struct{}
	Documents      map[int64]*DocumentRecord
	HighlightCount int
}

// NewLibrary returns an empty Library.
func NewLibrary() *Library {
	return &Library{
		Categories: make(map[string]struct{}),
		Documents:  make(map[int64]*DocumentRecord),
	}
}

// IDs returns document ids in ascending order.
func (l *Library) IDs() []int64 {
	ids := make([]int64, 0, len(l.Documents))
	for id := range l.Documents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Ordered returns documents in ascending id order.
func (l *Library) Ordered() []*DocumentRecord {
	ids := l.IDs()
	out := make([]*DocumentRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.Documents[id])
	}
	return out
}

// CategoryList returns the observed categories sorted alphabetically.
func (l *Library) CategoryList() []string {
	out := make([]string, 0, len(l.Categories))
	for c := range l.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
