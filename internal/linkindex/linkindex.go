// Package linkindex builds per-response lookup tables over the includes bucket.
package linkindex

import "github.com/starford/contentgraph/internal/models"

// Index maps (kind, id) to the included record. It is built once per
// upstream response and must not be merged with another response's index:
// two pages may carry different, truncated views of the same id.
type Index struct {
	entries map[string]*models.Record
	assets  map[string]*models.Record
}

// Build indexes the included entries and assets. Nil or empty inputs
// yield an index that resolves nothing. When an id repeats, the first
// occurrence wins.
func Build(entries, assets []*models.Record) *Index {
	return &Index{
		entries: byID(entries),
		assets:  byID(assets),
	}
}

func byID(records []*models.Record) map[string]*models.Record {
	out := make(map[string]*models.Record, len(records))
	for _, r := range records {
		if r == nil || r.ID == "" {
			continue
		}
		if _, dup := out[r.ID]; dup {
			continue
		}
		out[r.ID] = r
	}
	return out
}

// Lookup returns the record for kind and id. Unknown kinds are absent.
func (idx *Index) Lookup(kind models.LinkKind, id string) (*models.Record, bool) {
	if idx == nil {
		return nil, false
	}
	var r *models.Record
	var ok bool
	switch kind {
	case models.LinkEntry:
		r, ok = idx.entries[id]
	case models.LinkAsset:
		r, ok = idx.assets[id]
	}
	return r, ok
}

// Len returns the number of indexed entries and assets.
func (idx *Index) Len() (entries, assets int) {
	if idx == nil {
		return 0, 0
	}
	return len(idx.entries), len(idx.assets)
}
