package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbsync/internal/nbservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *nbservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notebook", func(r chi.Router) {
		r.Post("/open", h.Open)
		r.Get("/", h.Get)
		r.Delete("/", h.Close)
		r.Post("/changes", h.Submit)
		r.Post("/commands", h.Exec)
		r.Post("/save", h.Save)
		r.Post("/undo", h.Undo)
		r.Post("/redo", h.Redo)
		r.Get("/content", h.Content)
		r.Get("/outline", h.Outline)
		r.Get("/view", h.View)
	})
	r.Get("/notebooks", h.List)

	// Workspace catalog.
	r.Get("/files", h.Files)
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
