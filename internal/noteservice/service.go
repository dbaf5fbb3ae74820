// Package noteservice answers read-only questions about the mirrored vault
// for the HTTP API and the MCP server.
package noteservice

import (
	"context"
	"errors"
	"os"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/parser"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/writer"
)

// NoteDetail is the full representation of a mirrored file.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Identity    string         `json:"identity,omitempty"`
	Duplicate   bool           `json:"duplicate,omitempty"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Identity string `json:"identity,omitempty"`
	Checksum string `json:"checksum"`
}

// VaultStats summarizes the index.
type VaultStats struct {
	Files   int `json:"files"`
	Tracked int `json:"tracked"`
}

// Service coordinates storage and index reads.
type Service struct {
	store        storage.Provider
	db           *index.DB
	trackingProp string
}

// NewService creates a new note service. trackingProp is empty when file
// tracking is disabled.
func NewService(store storage.Provider, db *index.DB, trackingProp string) *Service {
	return &Service{store: store, db: db, trackingProp: trackingProp}
}

// GetNote reads and parses a file from the vault.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data)
}

// ListNotes returns a page of indexed files under prefix.
func (s *Service) ListNotes(_ context.Context, limit, offset int, prefix string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.List(limit, offset, prefix)
	if err != nil {
		return nil, 0, err
	}
	return toItems(rows), total, nil
}

// FindByIdentity returns every file carrying identity in its tracking
// property. More than one result means duplicates exist.
func (s *Service) FindByIdentity(_ context.Context, identity string) ([]NoteListItem, error) {
	if identity == "" {
		return nil, apperr.ErrNotFound
	}
	rows, err := s.db.FindByIdentity(identity)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrNotFound
	}
	return toItems(rows), nil
}

// Stats counts indexed and tracked files.
func (s *Service) Stats(_ context.Context) (VaultStats, error) {
	total, tracked, err := s.db.Count()
	if err != nil {
		return VaultStats{}, err
	}
	return VaultStats{Files: total, Tracked: tracked}, nil
}

func (s *Service) buildNoteDetail(path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	fm := make(map[string]any, res.Frontmatter.Len())
	for _, k := range res.Frontmatter.Keys() {
		if v, ok := res.Frontmatter.Get(k); ok {
			fm[k] = v
		}
	}
	dup, _ := fm[writer.DuplicateKey].(bool)
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Identity:    res.Identity(s.trackingProp),
		Duplicate:   dup,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Frontmatter: fm,
	}, nil
}

func toItems(rows []index.FileRow) []NoteListItem {
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{Path: r.Path, Title: r.Title, Identity: r.Identity, Checksum: r.Checksum}
	}
	return items
}
