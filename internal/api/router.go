package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/marginalia/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, sync SyncController, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sync)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sync control.
	r.Get("/status", h.Status)
	r.Post("/sync", h.TriggerSync)

	// Mirrored files.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)
	r.Get("/documents", h.FindDocument)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
