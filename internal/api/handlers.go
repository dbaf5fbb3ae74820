package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/noteservice"
	"github.com/starford/marginalia/internal/syncer"
)

// SyncController is the part of the sync orchestrator the API drives.
type SyncController interface {
	Start(ctx context.Context, opts syncer.Options) error
	Status() syncer.Status
}

// Handler holds API route handlers.
type Handler struct {
	svc  *noteservice.Service
	sync SyncController
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, sync SyncController) *Handler {
	return &Handler{svc: svc, sync: sync}
}

// notePath extracts the file path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. Readwise%2FBooks%2FA.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Status handles GET /api/status.
//
//	@Summary		Current sync state, last result and index counters
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeInternal(w, "vault stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Sync: h.sync.Status().View(), Vault: stats})
}

// TriggerSync handles POST /api/sync.
//
//	@Summary		Start a sync pass in the background
//	@Tags			sync
//	@Produce		json
//	@Param			full	query		bool	false	"Ignore the checkpoint and refetch everything"
//	@Success		202		{object}	SyncResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	full := false
	if v := r.URL.Query().Get("full"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "full must be a boolean")
			return
		}
		full = b
	}
	if err := h.sync.Start(r.Context(), syncer.Options{Full: full}); err != nil {
		if errors.Is(err, apperr.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync already in progress")
		} else {
			writeInternal(w, "start sync failed", err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, SyncResponse{Status: "started", Full: full})
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List indexed files with optional pagination and folder prefix
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			prefix	query		string	false	"Folder prefix"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("prefix"))
	if err != nil {
		writeInternal(w, "list notes failed", err)
		return
	}
	if items == nil {
		items = []NoteListItem{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single file by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			writeInternal(w, "get note failed", err, slog.String("path", path))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// FindDocument handles GET /api/documents.
//
//	@Summary		Find the files that mirror a remote document
//	@Tags			notes
//	@Produce		json
//	@Param			identity	query		string	true	"Tracking property value"
//	@Success		200			{object}	DocumentResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) FindDocument(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	items, err := h.svc.FindByIdentity(r.Context(), identity)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			writeInternal(w, "find document failed", err, slog.String("identity", identity))
		}
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Identity: identity, Files: items, Duplicates: len(items) > 1})
}
