package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// sys is the metadata header the content API attaches to records and links.
type sys struct {
	ID          string       `json:"id,omitempty"`
	Type        string       `json:"type,omitempty"`
	LinkType    string       `json:"linkType,omitempty"`
	ContentType *contentType `json:"contentType,omitempty"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

type contentType struct {
	Sys struct {
		ID string `json:"id"`
	} `json:"sys"`
}

const sysTypeLink = "Link"

// ErrMissingID is returned when a record carries no sys.id.
var ErrMissingID = errors.New("record without sys.id")

// MarshalJSON encodes a record in the upstream {sys, fields} shape.
func (r *Record) MarshalJSON() ([]byte, error) {
	s := sys{
		ID:        r.ID,
		Type:      string(r.Kind),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ContentType != "" {
		ct := &contentType{}
		ct.Sys.ID = r.ContentType
		s.ContentType = ct
	}
	fields := r.Fields
	if fields == nil {
		fields = Fields{}
	}
	return json.Marshal(struct {
		Sys    sys    `json:"sys"`
		Fields Fields `json:"fields"`
	}{s, fields})
}

// UnmarshalJSON decodes a record from the upstream {sys, fields} shape.
// A record without a "fields" key decodes with nil Fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sys    sys             `json:"sys"`
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Sys.ID == "" {
		return ErrMissingID
	}
	*r = Record{
		ID:        raw.Sys.ID,
		Kind:      LinkKind(raw.Sys.Type),
		CreatedAt: raw.Sys.CreatedAt,
		UpdatedAt: raw.Sys.UpdatedAt,
	}
	if raw.Sys.ContentType != nil {
		r.ContentType = raw.Sys.ContentType.Sys.ID
	}
	if len(raw.Fields) == 0 || bytes.Equal(bytes.TrimSpace(raw.Fields), []byte("null")) {
		return nil
	}
	var fields Fields
	if err := json.Unmarshal(raw.Fields, &fields); err != nil {
		return fmt.Errorf("record %s: fields: %w", r.ID, err)
	}
	r.Fields = fields
	return nil
}

// MarshalJSON encodes the value. Map keys are emitted in sorted order, so
// equal values always produce identical bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return json.Marshal(v.boolean)
	case KindLink:
		return json.Marshal(struct {
			Sys sys `json:"sys"`
		}{sys{ID: v.link.ID, Type: sysTypeLink, LinkType: string(v.link.Kind)}})
	case KindArray:
		items := v.items
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	case KindMap:
		fields := v.fields
		if fields == nil {
			fields = Fields{}
		}
		return json.Marshal(fields)
	case KindRecord:
		return v.record.MarshalJSON()
	case KindUnresolved:
		return json.Marshal(struct {
			Unresolved bool             `json:"unresolved"`
			ID         string           `json:"id"`
			Kind       LinkKind         `json:"kind"`
			Reason     UnresolvedReason `json:"reason"`
		}{true, v.link.ID, v.link.Kind, v.unresolved})
	}
	return nil, fmt.Errorf("models: cannot encode value of kind %s", v.kind)
}

// UnmarshalJSON decodes any field value, recognising link placeholders,
// embedded records and unresolved sentinels by shape.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("models: empty value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = Array(items...)
		return nil
	case '{':
		return v.unmarshalObject(data)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("models: invalid scalar %q: %w", data, err)
	}
	*v = Number(n)
	return nil
}

func (v *Value) unmarshalObject(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if rawSys, ok := obj["sys"]; ok {
		var s sys
		if err := json.Unmarshal(rawSys, &s); err == nil {
			switch {
			case s.Type == sysTypeLink:
				*v = LinkTo(LinkKind(s.LinkType), s.ID)
				return nil
			case LinkKind(s.Type).Valid() && s.ID != "":
				if _, hasFields := obj["fields"]; hasFields {
					var r Record
					if err := json.Unmarshal(data, &r); err != nil {
						return err
					}
					*v = RecordValue(&r)
					return nil
				}
			}
		}
	}

	if rawFlag, ok := obj["unresolved"]; ok && bytes.Equal(bytes.TrimSpace(rawFlag), []byte("true")) {
		var u struct {
			ID     string           `json:"id"`
			Kind   LinkKind         `json:"kind"`
			Reason UnresolvedReason `json:"reason"`
		}
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if u.Reason == "" {
			u.Reason = ReasonMissing
		}
		*v = UnresolvedValue(Link{ID: u.ID, Kind: u.Kind}, u.Reason)
		return nil
	}

	fields := make(Fields, len(obj))
	for k, raw := range obj {
		var fv Value
		if err := json.Unmarshal(raw, &fv); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = fv
	}
	*v = Map(fields)
	return nil
}
