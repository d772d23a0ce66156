// Package resolver substitutes link placeholders with the records they point at.
package resolver

import (
	"log/slog"

	"github.com/starford/contentgraph/internal/linkindex"
	"github.com/starford/contentgraph/internal/models"
)

// DefaultMaxDepth matches the include depth requested from upstream by default.
const DefaultMaxDepth = 2

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth sets how many levels of links are expanded below the root
// record. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n >= 1 {
			r.maxDepth = n
		}
	}
}

// WithLogger sets the logger used for missing-target warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithUnresolvedHook registers fn to be called for every sentinel produced.
func WithUnresolvedHook(fn func(models.Unresolved)) Option {
	return func(r *Resolver) {
		r.onUnresolved = fn
	}
}

// Resolver walks record fields and replaces every link. It holds no
// per-call state and is safe for concurrent use.
type Resolver struct {
	maxDepth     int
	logger       *slog.Logger
	onUnresolved func(models.Unresolved)
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth returns the configured depth cap.
func (r *Resolver) MaxDepth() int { return r.maxDepth }

// Resolve returns a copy of fields with every link replaced by the linked
// record, or by an unresolved sentinel when the target is missing or sits
// below the depth cap. The input is never modified.
func (r *Resolver) Resolve(fields models.Fields, idx *linkindex.Index) models.Fields {
	return r.fields(fields, idx, 0)
}

// ResolveRecord resolves rec's fields and returns a new record with the same header.
func (r *Resolver) ResolveRecord(rec *models.Record, idx *linkindex.Index) *models.Record {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Fields = r.fields(rec.Fields, idx, 0)
	return &out
}

// Resolve resolves fields with the default depth cap.
func Resolve(fields models.Fields, idx *linkindex.Index) models.Fields {
	return New().Resolve(fields, idx)
}

func (r *Resolver) fields(in models.Fields, idx *linkindex.Index, depth int) models.Fields {
	if in == nil {
		return nil
	}
	out := make(models.Fields, len(in))
	for k, v := range in {
		out[k] = r.value(v, idx, depth)
	}
	return out
}

func (r *Resolver) value(v models.Value, idx *linkindex.Index, depth int) models.Value {
	switch v.Kind() {
	case models.KindNull, models.KindString, models.KindNumber, models.KindBool, models.KindUnresolved:
		return v

	case models.KindLink:
		l, _ := v.AsLink()
		return r.link(l, idx, depth)

	case models.KindArray:
		items, _ := v.Items()
		out := make([]models.Value, len(items))
		for i, item := range items {
			out[i] = r.value(item, idx, depth)
		}
		return models.Array(out...)

	case models.KindMap:
		f, _ := v.Fields()
		return models.Map(r.fields(f, idx, depth))

	case models.KindRecord:
		// An embedded record counts as one expanded level.
		rec, _ := v.Record()
		cp := *rec
		cp.Fields = r.fields(rec.Fields, idx, depth+1)
		return models.RecordValue(&cp)
	}
	return v
}

func (r *Resolver) link(l models.Link, idx *linkindex.Index, depth int) models.Value {
	if depth >= r.maxDepth {
		r.logger.Debug("resolver: depth limit reached",
			slog.String("id", l.ID),
			slog.String("kind", string(l.Kind)),
			slog.Int("depth", depth))
		return r.unresolved(l, models.ReasonDepthLimit)
	}

	target, ok := idx.Lookup(l.Kind, l.ID)
	if !ok {
		r.logger.Warn("resolver: link target missing from includes",
			slog.String("id", l.ID),
			slog.String("kind", string(l.Kind)))
		return r.unresolved(l, models.ReasonMissing)
	}

	out := *target
	out.Fields = r.fields(target.Fields, idx, depth+1)
	return models.RecordValue(&out)
}

func (r *Resolver) unresolved(l models.Link, reason models.UnresolvedReason) models.Value {
	if r.onUnresolved != nil {
		r.onUnresolved(models.Unresolved{Link: l, Reason: reason})
	}
	return models.UnresolvedValue(l, reason)
}
