package fetcher

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValues(t *testing.T) {
	q := Query{
		ContentType: "article",
		Fields:      map[string]string{"slug": "hello"},
		Limit:       5,
		Skip:        10,
		Order:       "-sys.createdAt",
		Include:     2,
		Raw:         url.Values{"locale": {"en-US"}},
	}
	v := q.Values()
	assert.Equal(t, "article", v.Get("content_type"))
	assert.Equal(t, "hello", v.Get("fields.slug"))
	assert.Equal(t, "5", v.Get("limit"))
	assert.Equal(t, "10", v.Get("skip"))
	assert.Equal(t, "-sys.createdAt", v.Get("order"))
	assert.Equal(t, "2", v.Get("include"))
	assert.Equal(t, "en-US", v.Get("locale"))

	assert.Empty(t, Query{}.String())
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("?content_type=article&fields.tags[in]=a,b&limit=3&skip=x&locale=de")
	require.NoError(t, err)

	assert.Equal(t, "article", q.ContentType)
	assert.Equal(t, map[string]string{"tags[in]": "a,b"}, q.Fields)
	assert.Equal(t, 3, q.Limit)
	assert.Zero(t, q.Skip, "malformed number ignored")
	assert.Equal(t, "de", q.Raw.Get("locale"))

	// Round trip through Values keeps every parameter.
	again, err := ParseQuery(q.String())
	require.NoError(t, err)
	assert.Equal(t, q, again)

	_, err = ParseQuery("%zz")
	assert.Error(t, err)
}
