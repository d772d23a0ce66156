package models

// Record is a single entry or asset as delivered by the content API.
// A resolved Record is immutable and may be shared between goroutines.
type Record struct {
	ID          string
	Kind        LinkKind
	ContentType string // empty for assets
	CreatedAt   string
	UpdatedAt   string
	Fields      Fields
}

// Field returns the named field.
func (r *Record) Field(name string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// String returns the named field as a string, or "" when absent or not a string.
func (r *Record) String(name string) string {
	v, ok := r.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Get walks a path starting at the record's fields.
func (r *Record) Get(path ...string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	return RecordValue(r).Get(path...)
}

// Collection is the resolved result of one list query.
type Collection struct {
	Items []*Record `json:"items"`
	Total int       `json:"total"`
}

// First returns the first item, or nil when the collection is empty.
func (c *Collection) First() *Record {
	if c == nil || len(c.Items) == 0 {
		return nil
	}
	return c.Items[0]
}
