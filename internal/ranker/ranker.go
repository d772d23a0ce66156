// Package ranker selects related content by tag overlap.
package ranker

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/starford/contentgraph/internal/models"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 10

// DefaultTagField is the record field holding a candidate's tags.
const DefaultTagField = "tags"

// Fallback controls the order of results when no candidate matches any tag.
type Fallback string

const (
	// FallbackOriginal keeps the input order.
	FallbackOriginal Fallback = "original"
	// FallbackShuffle returns unmatched candidates in random order.
	FallbackShuffle Fallback = "shuffle"
)

// Candidate is a record with its relevance against a target tag set.
type Candidate struct {
	Record      *models.Record `json:"record"`
	Score       int            `json:"relevanceScore"`
	MatchedTags []string       `json:"matchedTags"`
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithTagField sets the field read for candidate tags.
func WithTagField(name string) Option {
	return func(r *Ranker) {
		if name != "" {
			r.tagField = name
		}
	}
}

// WithFallback sets the unmatched-candidate ordering.
func WithFallback(f Fallback) Option {
	return func(r *Ranker) {
		if f == FallbackOriginal || f == FallbackShuffle {
			r.fallback = f
		}
	}
}

// WithDefaultLimit overrides DefaultLimit.
func WithDefaultLimit(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.defaultLimit = n
		}
	}
}

// WithShuffle replaces the shuffle used by FallbackShuffle.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(r *Ranker) {
		if fn != nil {
			r.shuffle = fn
		}
	}
}

// Ranker scores candidates. It is stateless apart from its options.
type Ranker struct {
	tagField     string
	fallback     Fallback
	defaultLimit int
	shuffle      func(n int, swap func(i, j int))
}

// New creates a Ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{
		tagField:     DefaultTagField,
		fallback:     FallbackOriginal,
		defaultLimit: DefaultLimit,
		shuffle:      rand.Shuffle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores candidates with the default ranker and returns the records.
func Rank(candidates []*models.Record, targetTags []string, excludeID string, limit int) []*models.Record {
	return New().Rank(candidates, targetTags, excludeID, limit)
}

// Rank returns up to limit records ordered by tag overlap with targetTags.
func (r *Ranker) Rank(candidates []*models.Record, targetTags []string, excludeID string, limit int) []*models.Record {
	scored := r.Score(candidates, targetTags, excludeID, limit)
	out := make([]*models.Record, len(scored))
	for i, c := range scored {
		out[i] = c.Record
	}
	return out
}

// Score drops excludeID, scores every remaining candidate and returns up to
// limit of them. Matching candidates come first, highest score first, ties
// in input order. When nothing matches, unmatched candidates are returned
// in the configured fallback order instead.
func (r *Ranker) Score(candidates []*models.Record, targetTags []string, excludeID string, limit int) []Candidate {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	target := make(map[string]struct{}, len(targetTags))
	for _, t := range targetTags {
		if t = normalizeTag(t); t != "" {
			target[t] = struct{}{}
		}
	}

	var matched, unmatched []Candidate
	for _, rec := range candidates {
		if rec == nil || (excludeID != "" && rec.ID == excludeID) {
			continue
		}
		c := Candidate{Record: rec, MatchedTags: []string{}}
		seen := make(map[string]struct{})
		for _, tag := range Tags(rec, r.tagField) {
			key := normalizeTag(tag)
			if _, ok := target[key]; !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			c.MatchedTags = append(c.MatchedTags, tag)
		}
		c.Score = len(c.MatchedTags)
		if c.Score > 0 {
			matched = append(matched, c)
		} else {
			unmatched = append(unmatched, c)
		}
	}

	var out []Candidate
	if len(matched) > 0 {
		slices.SortStableFunc(matched, func(a, b Candidate) int {
			return b.Score - a.Score
		})
		out = matched
	} else {
		out = unmatched
		if r.fallback == FallbackShuffle {
			r.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Candidate{}
	}
	return out
}

// Tags extracts the tag names stored in field of rec. Plain strings are
// used as-is; resolved tag records contribute their "name", "title" or
// "slug" field. Anything else is ignored.
func Tags(rec *models.Record, field string) []string {
	v, ok := rec.Field(field)
	if !ok {
		return nil
	}
	items, ok := v.Items()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.AsString(); ok {
			out = append(out, s)
			continue
		}
		if tagRec, ok := it.Record(); ok {
			for _, name := range []string{"name", "title", "slug"} {
				if s := tagRec.String(name); s != "" {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
