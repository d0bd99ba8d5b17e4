// Package mcp provides the MCP tool handlers for the library server.
// Handlers validate request arguments, read the current library snapshot,
// and delegate to the search layer. Input errors come back as structured
// {"error": ...} payloads, never as protocol faults.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/epublic/epublic-mcp/internal/domain"
	"github.com/epublic/epublic-mcp/internal/index"
	"github.com/epublic/epublic-mcp/internal/library"
	"github.com/epublic/epublic-mcp/internal/search"
	"github.com/epublic/epublic-mcp/internal/textcache"
)

const (
	// defaultListLimit applies when list_books gets no limit argument.
	defaultListLimit = 50

	// defaultTopicLimit applies when find_topic gets no limit argument.
	defaultTopicLimit = 10

	// maxLimit caps page sizes at the tool boundary; larger values are
	// clamped, not rejected.
	maxLimit = 500
)

// Handlers wires the library snapshot, text cache, index and matcher into
// the three MCP tools.
type Handlers struct {
	library   *library.Library
	index     *index.Index
	texts     *textcache.Cache
	extractor library.Extractor
	matcher   search.Matcher
	logger    *slog.Logger
}

// NewHandlers creates the tool handlers.
func NewHandlers(lib *library.Library, ix *index.Index, texts *textcache.Cache,
	extractor library.Extractor, matcher search.Matcher, logger *slog.Logger) *Handlers {
	return &Handlers{
		library:   lib,
		index:     ix,
		texts:     texts,
		extractor: extractor,
		matcher:   matcher,
		logger:    logger,
	}
}

// ListBooksArgs defines the arguments for the list_books tool.
type ListBooksArgs struct {
	Limit         *int     `json:"limit,omitempty" jsonschema_description:"Maximum number of books to return (default 50, 0 for all)"`
	Offset        int      `json:"offset,omitempty" jsonschema_description:"Number of books to skip before returning results (default 0)"`
	IncludeFields []string `json:"include_fields,omitempty" jsonschema_description:"Optional fields to include: author, published, path"`
}

// SearchBooksArgs defines the arguments for the search_books tool.
type SearchBooksArgs struct {
	Query string `json:"query" jsonschema_description:"Search query (title, author name, or year)"`
}

// FindTopicArgs defines the arguments for the find_topic tool.
type FindTopicArgs struct {
	Topic        string   `json:"topic,omitempty" jsonschema_description:"Topic to search for"`
	Topics       []string `json:"topics,omitempty" jsonschema_description:"Optional list of topics; matches any topic (OR logic)"`
	BookFilter   string   `json:"book_filter,omitempty" jsonschema_description:"Optional: filter to specific book title"`
	AuthorFilter string   `json:"author_filter,omitempty" jsonschema_description:"Optional: filter to specific author"`
	Limit        *int     `json:"limit,omitempty" jsonschema_description:"Maximum number of results (default 10, 0 for all)"`
	Offset       int      `json:"offset,omitempty" jsonschema_description:"Number of results to skip before returning matches (default 0)"`
	MatchType    string   `json:"match_type,omitempty" jsonschema_description:"Match strategy for book/author filters: exact or fuzzy (default fuzzy)"`
}

// listEntry is one row of a list_books response; optional fields appear only
// when requested via include_fields.
type listEntry struct {
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	Published string `json:"published,omitempty"`
	Path      string `json:"path,omitempty"`
}

// ListBooks handles the list_books tool call: the library sorted by
// lower-cased title, paginated.
func (h *Handlers) ListBooks(ctx context.Context, req *mcp.CallToolRequest, args ListBooksArgs) (*mcp.CallToolResult, any, error) {
	books := h.library.Snapshot()
	if len(books) == 0 {
		return errorResult("books not loaded yet"), nil, nil
	}

	limit, ok := resolveLimit(args.Limit, defaultListLimit)
	if !ok {
		return errorResult("limit must be a non-negative integer"), nil, nil
	}
	if args.Offset < 0 {
		return errorResult("offset must be a non-negative integer"), nil, nil
	}

	sorted := make([]domain.Book, 0, len(books))
	for _, b := range books {
		sorted = append(sorted, b)
	}
	slices.SortFunc(sorted, func(a, b domain.Book) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})

	page := paginate(sorted, args.Offset, limit)
	fields := make(map[string]bool, len(args.IncludeFields))
	for _, f := range args.IncludeFields {
		fields[f] = true
	}

	entries := make([]listEntry, 0, len(page))
	for _, b := range page {
		entry := listEntry{Title: b.Title}
		if fields["author"] {
			entry.Author = orUnknown(b.Author, domain.UnknownAuthor)
		}
		if fields["published"] {
			entry.Published = orUnknown(b.Published, domain.UnknownPublished)
		}
		if fields["path"] {
			entry.Path = b.Path
		}
		entries = append(entries, entry)
	}

	h.logger.Info("list_books", "total", len(sorted), "returned", len(entries))

	return jsonResult(map[string]any{
		"total":  len(sorted),
		"offset": args.Offset,
		"limit":  limit,
		"books":  entries,
	}), nil, nil
}

// SearchBooks handles the search_books tool call: metadata search by title,
// author, or publication year.
func (h *Handlers) SearchBooks(ctx context.Context, req *mcp.CallToolRequest, args SearchBooksArgs) (*mcp.CallToolResult, any, error) {
	books := h.library.Snapshot()
	if len(books) == 0 {
		return errorResult("books not loaded yet"), nil, nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("query is required"), nil, nil
	}

	results := search.Metadata(args.Query, books, h.matcher)

	h.logger.Info("search_books", "query", args.Query, "hits", len(results))

	return jsonResult(results), nil, nil
}

// FindTopic handles the find_topic tool call: full-text topic search with
// attributed, context-bearing paragraph excerpts.
func (h *Handlers) FindTopic(ctx context.Context, req *mcp.CallToolRequest, args FindTopicArgs) (*mcp.CallToolResult, any, error) {
	books := h.library.Snapshot()
	if len(books) == 0 {
		return errorResult("books not loaded yet"), nil, nil
	}

	if args.Topic == "" && len(args.Topics) == 0 {
		return errorResult("topic or topics is required"), nil, nil
	}
	limit, ok := resolveLimit(args.Limit, defaultTopicLimit)
	if !ok {
		return errorResult("limit must be a non-negative integer"), nil, nil
	}
	if args.Offset < 0 {
		return errorResult("offset must be a non-negative integer"), nil, nil
	}
	matchType := args.MatchType
	if matchType == "" {
		matchType = index.MatchFuzzy
	}
	if matchType != index.MatchExact && matchType != index.MatchFuzzy {
		return errorResult(search.ErrMatchType.Error()), nil, nil
	}

	result, err := search.Topic(ctx, search.TopicOptions{
		Topic:        args.Topic,
		Topics:       args.Topics,
		Limit:        limit,
		Offset:       args.Offset,
		BookFilter:   args.BookFilter,
		AuthorFilter: args.AuthorFilter,
		MatchType:    matchType,
	}, books, h.index, h.texts.Loader(h.extractor.Text, h.logger))
	if err != nil {
		h.logger.Error("find_topic failed", "error", err)
		return errorResult(err.Error()), nil, nil
	}

	h.logger.Info("find_topic",
		"topics", len(args.Topics),
		"total_results", result.TotalResults,
		"returned", len(result.Results),
	)

	return jsonResult(result), nil, nil
}

// resolveLimit applies the default for an absent limit, validates sign, and
// clamps to the tool-boundary maximum.
func resolveLimit(limit *int, def int) (int, bool) {
	if limit == nil {
		return def, true
	}
	if *limit < 0 {
		return 0, false
	}
	if *limit > maxLimit {
		return maxLimit, true
	}
	return *limit, true
}

// paginate slices [offset, offset+limit); limit 0 means "to the end".
func paginate(books []domain.Book, offset, limit int) []domain.Book {
	if offset >= len(books) {
		return nil
	}
	end := len(books)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return books[offset:end]
}

func orUnknown(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode response: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}
}
