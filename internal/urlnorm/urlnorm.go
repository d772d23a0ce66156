// Package urlnorm makes scheme-relative asset URLs safe to render.
package urlnorm

import (
	"strings"

	"github.com/starford/contentgraph/internal/models"
)

// URLField is the field name whose string values are normalized by Fields.
const URLField = "url"

// EnsureProtocol prefixes scheme-relative URLs ("//host/path") with "https:".
// Anything else, including the empty string, is returned unchanged.
func EnsureProtocol(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// Fields returns a copy of fields in which every string stored under a
// "url" key, at any depth, has been passed through EnsureProtocol.
func Fields(fields models.Fields) models.Fields {
	if fields == nil {
		return nil
	}
	out := make(models.Fields, len(fields))
	for k, v := range fields {
		if k == URLField {
			if s, ok := v.AsString(); ok {
				out[k] = models.String(EnsureProtocol(s))
				continue
			}
		}
		out[k] = value(v)
	}
	return out
}

// Record returns a copy of rec with its URLs normalized.
func Record(rec *models.Record) *models.Record {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Fields = Fields(rec.Fields)
	return &out
}

func value(v models.Value) models.Value {
	switch v.Kind() {
	case models.KindMap:
		f, _ := v.Fields()
		return models.Map(Fields(f))
	case models.KindArray:
		items, _ := v.Items()
		out := make([]models.Value, len(items))
		for i, it := range items {
			out[i] = value(it)
		}
		return models.Array(out...)
	case models.KindRecord:
		rec, _ := v.Record()
		return models.RecordValue(Record(rec))
	}
	return v
}
