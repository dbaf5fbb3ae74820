package api

import (
	"github.com/starford/marginalia/internal/noteservice"
	"github.com/starford/marginalia/internal/syncer"
)

// NoteDetail is the full file response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated file listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// StatusResponse reports the sync state and index counters.
type StatusResponse struct {
	Sync  syncer.StatusView      `json:"sync" validate:"required"`
	Vault noteservice.VaultStats `json:"vault" validate:"required"`
}

// SyncResponse acknowledges an accepted sync request.
type SyncResponse struct {
	Status string `json:"status" example:"started" validate:"required"`
	Full   bool   `json:"full" example:"false"`
}

// DocumentResponse lists the files that mirror one remote document.
type DocumentResponse struct {
	Identity   string         `json:"identity" example:"https://readwise.io/bookreview/42" validate:"required"`
	Files      []NoteListItem `json:"files" validate:"required"`
	Duplicates bool           `json:"duplicates"`
}
