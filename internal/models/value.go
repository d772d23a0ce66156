// Package models defines the domain types for content records and their field values.
package models

import (
	"encoding/json"
	"strconv"
)

// ValueKind identifies which variant a Value holds.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindLink
	KindArray
	KindMap
	KindRecord
	KindUnresolved
)

// String returns a readable name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindLink:
		return "link"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	case KindUnresolved:
		return "unresolved"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// LinkKind is the kind of object a Link points at.
type LinkKind string

const (
	LinkEntry LinkKind = "Entry"
	LinkAsset LinkKind = "Asset"
)

// Valid reports whether k is a kind the upstream API emits.
func (k LinkKind) Valid() bool {
	return k == LinkEntry || k == LinkAsset
}

// Link is an unresolved reference to another record.
type Link struct {
	ID   string   `json:"id"`
	Kind LinkKind `json:"kind"`
}

// UnresolvedReason explains why a link could not be substituted.
type UnresolvedReason string

const (
	// ReasonMissing means the target was not present in the response includes.
	ReasonMissing UnresolvedReason = "missing"
	// ReasonDepthLimit means the link sits below the configured resolution depth.
	ReasonDepthLimit UnresolvedReason = "depth_limit"
)

// Unresolved is the sentinel left in place of a link whose target is unavailable.
type Unresolved struct {
	Link
	Reason UnresolvedReason `json:"reason"`
}

// Fields maps field names to values.
type Fields map[string]Value

// Value is a tagged union over everything a record field can hold.
//
// The zero Value is null.
type Value struct {
	kind       ValueKind
	str        string // string payload, or the literal text of a number
	boolean    bool
	link       Link
	items      []Value
	fields     Fields
	record     *Record
	unresolved UnresolvedReason
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a number value holding the literal n.
func Number(n json.Number) Value { return Value{kind: KindNumber, str: string(n)} }

// Float returns a number value for f.
func Float(f float64) Value {
	return Value{kind: KindNumber, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// LinkTo returns a link placeholder.
func LinkTo(kind LinkKind, id string) Value {
	return Value{kind: KindLink, link: Link{ID: id, Kind: kind}}
}

// Array returns an array value. The slice is not copied.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Map returns a nested map value. The map is not copied.
func Map(f Fields) Value {
	if f == nil {
		f = Fields{}
	}
	return Value{kind: KindMap, fields: f}
}

// RecordValue wraps a resolved record.
func RecordValue(r *Record) Value {
	if r == nil {
		return Null()
	}
	return Value{kind: KindRecord, record: r}
}

// UnresolvedValue returns the sentinel for link l.
func UnresolvedValue(l Link, reason UnresolvedReason) Value {
	return Value{kind: KindUnresolved, link: l, unresolved: reason}
}

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsScalar reports whether v is null, a string, a number or a bool.
func (v Value) IsScalar() bool {
	switch v.kind {
	case KindNull, KindString, KindNumber, KindBool:
		return true
	}
	return false
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the literal text of a number.
func (v Value) AsNumber() (json.Number, bool) {
	return json.Number(v.str), v.kind == KindNumber
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

// AsLink returns the link placeholder.
func (v Value) AsLink() (Link, bool) {
	if v.kind != KindLink {
		return Link{}, false
	}
	return v.link, true
}

// Items returns the elements of an array value.
func (v Value) Items() ([]Value, bool) {
	return v.items, v.kind == KindArray
}

// Fields returns the entries of a map value.
func (v Value) Fields() (Fields, bool) {
	return v.fields, v.kind == KindMap
}

// Record returns the resolved record.
func (v Value) Record() (*Record, bool) {
	return v.record, v.kind == KindRecord
}

// Unresolved returns the sentinel payload.
func (v Value) Unresolved() (Unresolved, bool) {
	if v.kind != KindUnresolved {
		return Unresolved{}, false
	}
	return Unresolved{Link: v.link, Reason: v.unresolved}, true
}

// Get walks a dotted path through maps and records, e.g. "fields.file.url".
// The "fields" segment is accepted on records so paths match the JSON shape.
func (v Value) Get(path ...string) (Value, bool) {
	cur := v
	for i := 0; i < len(path); i++ {
		seg := path[i]
		switch cur.kind {
		case KindMap:
			next, ok := cur.fields[seg]
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindRecord:
			if seg == "fields" {
				cur = Map(cur.record.Fields)
				continue
			}
			next, ok := cur.record.Fields[seg]
			if !ok {
				return Value{}, false
			}
			cur = next
		default:
			return Value{}, false
		}
	}
	return cur, true
}
