// Package storage keeps static fallback documents on disk, one JSON file
// per cache key.
package storage

import "time"

// Meta describes one stored document.
type Meta struct {
	Key       string
	Path      string // relative to the store root
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for fallback document operations.
type Provider interface {
	// List returns metadata for every document in the store.
	List() ([]Meta, error)
	// Read returns the raw bytes stored for key.
	Read(key string) ([]byte, error)
	// Write atomically replaces the document stored for key.
	Write(key string, content []byte) error
	// Delete removes the document stored for key.
	Delete(key string) error
}
