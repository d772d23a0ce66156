package mcpserver

// RecordFormatURI identifies the record format resource.
const RecordFormatURI = "contentgraph://record-format"

// RecordFormatContract describes the JSON shape of resolved records that
// the tools return.
const RecordFormatContract = `# Resolved Record Format

Every record returned by the content graph tools is a JSON object with a
"sys" header and a "fields" map.

## Record

` + "```" + `json
{
  "sys": {
    "id": "home",
    "type": "Entry",
    "contentType": {"sys": {"id": "landing"}},
    "createdAt": "2025-01-15T10:00:00Z",
    "updatedAt": "2025-01-20T08:30:00Z"
  },
  "fields": {
    "title": "Home",
    "hero": {
      "sys": {"id": "img", "type": "Asset"},
      "fields": {"url": "https://cdn.example.com/h.png"}
    },
    "author": {"unresolved": true, "id": "p9", "kind": "Entry", "reason": "missing"}
  }
}
` + "```" + `

## Rules

1. **Links are inlined.** A field that referenced another entry or asset
   holds the full target record instead of the link.
2. **Depth is capped at 2.** Links found two levels below the root are not
   followed. They appear as a sentinel with ` + "`" + `"reason": "depth_limit"` + "`" + `.
3. **Missing targets** appear as a sentinel with ` + "`" + `"reason": "missing"` + "`" + `.
   Sentinels always carry ` + "`" + `"unresolved": true` + "`" + `, the target ` + "`" + `id` + "`" + ` and its
   ` + "`" + `kind` + "`" + ` (Entry or Asset).
4. **URLs are absolute.** Protocol-relative values such as
   ` + "`" + `//cdn.example.com/x.png` + "`" + ` are returned as ` + "`" + `https://cdn.example.com/x.png` + "`" + `.
5. **Numbers** keep the exact text the upstream sent.
6. **Content may be stale.** Cached entries are served after their TTL while
   a refresh runs in the background.

## Related content

` + "`" + `related_content` + "`" + ` returns a list of
` + "`" + `{"record": {...}, "relevanceScore": 2, "matchedTags": ["go", "cache"]}` + "`" + `
ordered by score. When no candidate shares a tag, the unscored candidates
are returned instead, all with score 0.
`
