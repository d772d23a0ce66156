package contentservice

import "net/url"

// PageKey is the cache key used for a page type when the caller gives none.
func PageKey(pageType string) string {
	return "page:" + pageType
}

// EntriesKey is the cache key used for a listing when the caller gives
// none. The query is encoded with sorted keys so equal queries share a key.
func EntriesKey(contentType string, query url.Values) string {
	if len(query) == 0 {
		return contentType
	}
	return contentType + "?" + query.Encode()
}
