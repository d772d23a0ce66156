// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes content graph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/contentgraph/internal/contentservice"
	"github.com/starford/contentgraph/internal/models"
	"github.com/starford/contentgraph/internal/ranker"
)

// Content is the subset of the content service the tools use.
type Content interface {
	GetPageCached(ctx context.Context, pageType, cacheKey string) *models.Record
	GetEntriesCached(ctx context.Context, contentType, cacheKey, queryString string) ([]*models.Record, error)
	Related(ctx context.Context, contentType, cacheKey string, tags []string, excludeID string, limit int) ([]ranker.Candidate, error)
	EnsureProtocol(u string) string
	Fallback(key string) (*models.Collection, bool)
}

// Server wraps the MCP server with content graph tools.
type Server struct {
	mcp     *server.MCPServer
	content Content
}

// New creates a new MCP server with all content graph tools registered.
func New(content Content, version string) *Server {
	s := &Server{content: content}

	s.mcp = server.NewMCPServer(
		"ContentGraph",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_page",
		mcp.WithDescription("Get the resolved page of a content type. Linked entries and assets "+
			"are inlined up to two levels deep. See the contentgraph://record-format resource."),
		mcp.WithString("page_type", mcp.Required(), mcp.Description("Content type of the page (e.g. landing)")),
		mcp.WithString("key", mcp.Description("Cache key; defaults to page:<page_type>")),
	), s.getPage)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List resolved entries of a content type, optionally filtered by an upstream query."),
		mcp.WithString("content_type", mcp.Required(), mcp.Description("Content type to list")),
		mcp.WithString("query", mcp.Description("Upstream query string (e.g. order=-sys.createdAt&limit=10)")),
		mcp.WithString("key", mcp.Description("Cache key; defaults to one derived from the query")),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("related_content",
		mcp.WithDescription("Rank entries of a content type by how many tags they share with the given tags."),
		mcp.WithString("content_type", mcp.Required(), mcp.Description("Content type of the candidates")),
		mcp.WithString("tags", mcp.Description("Comma-separated target tags")),
		mcp.WithString("exclude", mcp.Description("Entry ID to leave out, usually the current entry")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithString("key", mcp.Description("Cache key of the candidate listing")),
	), s.relatedContent)

	s.mcp.AddTool(mcp.NewTool("ensure_protocol",
		mcp.WithDescription("Make a protocol-relative URL (//host/path) absolute with https."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to normalize")),
	), s.ensureProtocol)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the JSON format of resolved records, including unresolved link sentinels."),
	), s.getRecordFormat)

	s.mcp.AddResource(
		mcp.NewResource(RecordFormatURI, "Resolved Record Format",
			mcp.WithResourceDescription("JSON shape of resolved records returned by the tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageType, err := req.RequireString("page_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key := req.GetString("key", contentservice.PageKey(pageType))

	page := s.content.GetPageCached(ctx, pageType, key)
	if page == nil {
		if doc, ok := s.content.Fallback(key); ok {
			page = doc.First()
		}
	}
	if page == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no content for %s", key)), nil
	}
	return jsonResult(page)
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentType, err := req.RequireString("content_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := url.ParseQuery(strings.TrimPrefix(req.GetString("query", ""), "?"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
	}
	key := req.GetString("key", contentservice.EntriesKey(contentType, query))

	items, err := s.content.GetEntriesCached(ctx, contentType, key, query.Encode())
	if err != nil {
		doc, ok := s.content.Fallback(key)
		if !ok {
			return mcp.NewToolResultError(err.Error()), nil
		}
		slog.Warn("mcp: serving fallback entries", slog.String("key", key), slog.String("error", err.Error()))
		items = doc.Items
	}
	return jsonResult(items)
}

func (s *Server) relatedContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentType, err := req.RequireString("content_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var tags []string
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	limit := req.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}
	key := req.GetString("key", contentservice.EntriesKey(contentType, nil))

	ranked, err := s.content.Related(ctx, contentType, key, tags, req.GetString("exclude", ""), limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ranked)
}

func (s *Server) ensureProtocol(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.content.EnsureProtocol(u)), nil
}

func (s *Server) getRecordFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RecordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
