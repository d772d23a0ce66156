package fetcher

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const fieldPrefix = "fields."

// Query selects entries from the upstream delivery API.
type Query struct {
	ContentType string
	// Fields holds equality filters keyed by field name, without the
	// "fields." prefix.
	Fields map[string]string
	// Limit caps the number of items. Zero pages through everything up to
	// the configured page budget.
	Limit int
	Skip  int
	Order string
	// Include overrides the configured link include depth when positive.
	Include int
	// Raw carries upstream parameters that have no typed field.
	Raw url.Values
}

// Values encodes q as upstream query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	for k, vals := range q.Raw {
		for _, s := range vals {
			v.Add(k, s)
		}
	}
	if q.ContentType != "" {
		v.Set("content_type", q.ContentType)
	}
	for k, s := range q.Fields {
		v.Set(fieldPrefix+k, s)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Include > 0 {
		v.Set("include", strconv.Itoa(q.Include))
	}
	return v
}

// String returns the encoded query with keys sorted.
func (q Query) String() string {
	return q.Values().Encode()
}

// ParseQuery builds a Query from a raw query string such as the one a
// caller forwards from an incoming request. Unknown keys pass through in
// Raw. Malformed numeric values are ignored.
func ParseQuery(raw string) (Query, error) {
	vals, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return Query{}, err
	}
	return QueryFromValues(vals), nil
}

// QueryFromValues is ParseQuery for already decoded values.
func QueryFromValues(vals url.Values) Query {
	var q Query
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := vals.Get(k)
		switch {
		case k == "content_type":
			q.ContentType = s
		case k == "limit":
			q.Limit, _ = strconv.Atoi(s)
		case k == "skip":
			q.Skip, _ = strconv.Atoi(s)
		case k == "order":
			q.Order = s
		case k == "include":
			q.Include, _ = strconv.Atoi(s)
		case strings.HasPrefix(k, fieldPrefix) && len(k) > len(fieldPrefix):
			if q.Fields == nil {
				q.Fields = make(map[string]string)
			}
			q.Fields[k[len(fieldPrefix):]] = s
		default:
			if q.Raw == nil {
				q.Raw = url.Values{}
			}
			q.Raw[k] = append([]string(nil), vals[k]...)
		}
	}
	return q
}
