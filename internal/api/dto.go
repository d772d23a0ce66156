package api

import (
	"github.com/starford/contentgraph/internal/cache"
	"github.com/starford/contentgraph/internal/models"
	"github.com/starford/contentgraph/internal/ranker"
)

// Source reports where a response body came from.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// PageResponse wraps a single resolved page record.
type PageResponse struct {
	Key    string         `json:"key" example:"page:home" validate:"required"`
	Source string         `json:"source" example:"live" validate:"required"`
	Page   *models.Record `json:"page" validate:"required"`
}

// EntriesResponse wraps a resolved entry listing.
type EntriesResponse struct {
	Key    string           `json:"key" example:"article?limit=10" validate:"required"`
	Source string           `json:"source" example:"live" validate:"required"`
	Items  []*models.Record `json:"items" validate:"required"`
	Total  int              `json:"total" example:"42" validate:"required"`
}

// RelatedResponse wraps ranked related content.
type RelatedResponse struct {
	Key   string             `json:"key" example:"article" validate:"required"`
	Items []ranker.Candidate `json:"items" validate:"required"`
}

// StatsResponse reports cache activity and the cached keys.
type StatsResponse struct {
	cache.Stats
	Keys []string `json:"keys" validate:"required"`
}

// InvalidateResponse reports whether a key was dropped.
type InvalidateResponse struct {
	Key         string `json:"key" example:"page:home" validate:"required"`
	Invalidated bool   `json:"invalidated" example:"true"`
}
