package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc ContentService, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/pages/{pageType}", h.GetPage)
	r.Get("/entries/{contentType}", h.ListEntries)
	r.Get("/related/{contentType}", h.Related)

	r.Get("/cache/stats", h.CacheStats)
	r.Delete("/cache/{key}", h.InvalidateCache)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
