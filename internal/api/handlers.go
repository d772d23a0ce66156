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
	"github.com/starford/contentgraph/internal/apperr"
	"github.com/starford/contentgraph/internal/cache"
	"github.com/starford/contentgraph/internal/contentservice"
	"github.com/starford/contentgraph/internal/models"
	"github.com/starford/contentgraph/internal/ranker"
)

// ContentService is the subset of the content service the handlers use.
type ContentService interface {
	GetPageCached(ctx context.Context, pageType, cacheKey string) *models.Record
	GetEntriesCached(ctx context.Context, contentType, cacheKey, queryString string) ([]*models.Record, error)
	Related(ctx context.Context, contentType, cacheKey string, tags []string, excludeID string, limit int) ([]ranker.Candidate, error)
	Fallback(key string) (*models.Collection, bool)
	Stats() cache.Stats
	Keys() []string
	Invalidate(ctx context.Context, key string) bool
}

// Handler holds API route handlers.
type Handler struct {
	svc ContentService
}

// NewHandler creates a new Handler.
func NewHandler(svc ContentService) *Handler {
	return &Handler{svc: svc}
}

// Reserved query parameters; everything else on /entries goes upstream.
const (
	paramKey     = "key"
	paramTags    = "tags"
	paramExclude = "exclude"
	paramLimit   = "limit"
)

// pathParam reads a chi URL parameter, tolerating encoded slashes.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetPage handles GET /api/pages/{pageType}.
//
//	@Summary		Get the resolved page of a content type
//	@Tags			content
//	@Produce		json
//	@Param			pageType	path		string	true	"Content type of the page"
//	@Param			key			query		string	false	"Cache key (default page:{pageType})"
//	@Success		200			{object}	PageResponse
//	@Success		304
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{pageType} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	pageType := pathParam(r, "pageType")
	if pageType == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("page type is required"))
		return
	}
	key := r.URL.Query().Get(paramKey)
	if key == "" {
		key = contentservice.PageKey(pageType)
	}

	if page := h.svc.GetPageCached(r.Context(), pageType, key); page != nil {
		writeCacheable(w, r, PageResponse{Key: key, Source: SourceLive, Page: page})
		return
	}
	if doc, ok := h.svc.Fallback(key); ok && doc.First() != nil {
		writeCacheable(w, r, PageResponse{Key: key, Source: SourceFallback, Page: doc.First()})
		return
	}
	writeJSON(w, http.StatusNotFound, errorBody("not found"))
}

// ListEntries handles GET /api/entries/{contentType}.
//
//	@Summary		List resolved entries of a content type
//	@Tags			content
//	@Produce		json
//	@Param			contentType	path		string	true	"Content type"
//	@Param			key			query		string	false	"Cache key (default derived from the query)"
//	@Success		200			{object}	EntriesResponse
//	@Success		304
//	@Failure		502			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{contentType} [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	contentType := pathParam(r, "contentType")
	if contentType == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content type is required"))
		return
	}
	query := r.URL.Query()
	key := query.Get(paramKey)
	query.Del(paramKey)
	if key == "" {
		key = contentservice.EntriesKey(contentType, query)
	}

	items, err := h.svc.GetEntriesCached(r.Context(), contentType, key, query.Encode())
	if err == nil {
		writeCacheable(w, r, EntriesResponse{Key: key, Source: SourceLive, Items: items, Total: len(items)})
		return
	}
	if doc, ok := h.svc.Fallback(key); ok {
		slog.Warn("serving fallback entries",
			slog.String("key", key),
			slog.String("error", err.Error()))
		writeCacheable(w, r, EntriesResponse{Key: key, Source: SourceFallback, Items: doc.Items, Total: len(doc.Items)})
		return
	}
	h.upstreamError(w, "list entries failed", key, err)
}

// Related handles GET /api/related/{contentType}.
//
//	@Summary		Rank entries of a content type by tag overlap
//	@Tags			content
//	@Produce		json
//	@Param			contentType	path		string	true	"Content type"
//	@Param			key			query		string	false	"Cache key (default {contentType})"
//	@Param			tags		query		string	false	"Comma-separated target tags"
//	@Param			exclude		query		string	false	"Entry ID to leave out"
//	@Param			limit		query		int		false	"Maximum results"
//	@Success		200			{object}	RelatedResponse
//	@Failure		400			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/related/{contentType} [get]
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	contentType := pathParam(r, "contentType")
	if contentType == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content type is required"))
		return
	}
	q := r.URL.Query()
	key := q.Get(paramKey)
	if key == "" {
		key = contentservice.EntriesKey(contentType, nil)
	}
	limit := 0
	if raw := q.Get(paramLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	items, err := h.svc.Related(r.Context(), contentType, key, splitTags(q.Get(paramTags)), q.Get(paramExclude), limit)
	if err != nil {
		h.upstreamError(w, "related content failed", key, err)
		return
	}
	writeCacheable(w, r, RelatedResponse{Key: key, Items: items})
}

// CacheStats handles GET /api/cache/stats.
//
//	@Summary		Cache statistics
//	@Tags			cache
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/cache/stats [get]
func (h *Handler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{Stats: h.svc.Stats(), Keys: h.svc.Keys()})
}

// InvalidateCache handles DELETE /api/cache/{key}.
//
//	@Summary		Drop a cache key
//	@Tags			cache
//	@Produce		json
//	@Param			key	path		string	true	"Cache key (URL-encoded)"
//	@Success		200	{object}	InvalidateResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cache/{key} [delete]
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	if !h.svc.Invalidate(r.Context(), key) {
		writeJSON(w, http.StatusNotFound, errorBody("key not cached"))
		return
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Key: key, Invalidated: true})
}

func (h *Handler) upstreamError(w http.ResponseWriter, msg, key string, err error) {
	slog.Error(msg, slog.String("key", key), slog.String("error", err.Error()))
	switch {
	case errors.Is(err, apperr.ErrRateLimited):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("upstream rate limited"))
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		writeJSON(w, http.StatusBadGateway, errorBody("upstream unavailable"))
	}
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
