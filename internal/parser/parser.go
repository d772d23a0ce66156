// Package parser decodes content API responses into records and checks their shape.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/starford/contentgraph/internal/apperr"
	"github.com/starford/contentgraph/internal/models"
)

// Includes holds the linked objects delivered alongside a page of items.
type Includes struct {
	Entry []*models.Record `json:"Entry"`
	Asset []*models.Record `json:"Asset"`
}

// Response is one page returned by the content API.
type Response struct {
	Items    []*models.Record `json:"items"`
	Includes Includes         `json:"includes"`
	Total    int              `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
}

// envelope distinguishes a missing "items" key from an empty one.
type envelope struct {
	Items    *json.RawMessage `json:"items"`
	Includes *Includes        `json:"includes"`
	Total    *int             `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
	Message  string           `json:"message"`
}

// Parse decodes a raw response body. Any structural problem is reported
// as apperr.ErrShape; a missing or partial includes bucket is not an error.
func Parse(data []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperr.ErrShape, err)
	}
	if env.Items == nil {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: response has no items: %s", apperr.ErrShape, env.Message)
		}
		return nil, fmt.Errorf("%w: response has no items", apperr.ErrShape)
	}

	var items []*models.Record
	if err := json.Unmarshal(*env.Items, &items); err != nil {
		return nil, fmt.Errorf("%w: items: %v", apperr.ErrShape, err)
	}
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("%w: items[%d] is null", apperr.ErrShape, i)
		}
		if it.Fields == nil {
			return nil, fmt.Errorf("%w: items[%d] (%s) has no fields", apperr.ErrShape, i, it.ID)
		}
	}

	resp := &Response{
		Items: items,
		Skip:  env.Skip,
		Limit: env.Limit,
		Total: len(items),
	}
	if env.Total != nil {
		resp.Total = *env.Total
	}
	if env.Includes != nil {
		resp.Includes = *env.Includes
	}
	return resp, nil
}

// Decode reads a full response body from r and parses it.
func Decode(r io.Reader) (*Response, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parser: read body: %w", err)
	}
	return Parse(data)
}

// ParseDocument decodes a standalone document that is either a single
// record or a {"items": [...]} list, as used for static fallback files.
// A list keeps its includes so links in it can still be resolved.
func ParseDocument(data []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: document must be a JSON object", apperr.ErrShape)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, fmt.Errorf("%w: decode document: %v", apperr.ErrShape, err)
	}
	if _, ok := top["items"]; ok {
		return Parse(trimmed)
	}

	var rec models.Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", apperr.ErrShape, err)
	}
	if rec.Fields == nil {
		return nil, fmt.Errorf("%w: record %s has no fields", apperr.ErrShape, rec.ID)
	}
	return &Response{Items: []*models.Record{&rec}, Total: 1, Limit: 1}, nil
}
