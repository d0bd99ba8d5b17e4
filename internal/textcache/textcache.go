// Package textcache bounds the memory spent on parsed book bodies.
// Parsing an EPUB body is the expensive step of index builds and topic
// searches, so bodies are kept in a small LRU keyed by file path. The cache
// is in-memory only and dies with the process.
package textcache

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/epublic/epublic-mcp/internal/domain"
)

// DefaultCapacity is the default number of book bodies kept resident.
const DefaultCapacity = 8

// Cache is a bounded, recency-ordered cache of book bodies (path -> text).
// It is safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, string]
}

// New creates a Cache holding at most capacity bodies.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("create text cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached body for a path, marking it most recently used.
func (c *Cache) Get(path string) (string, bool) {
	return c.lru.Get(path)
}

// Add stores a body, evicting the least recently used entry when full.
func (c *Cache) Add(path, text string) {
	c.lru.Add(path, text)
}

// Len reports the number of resident bodies.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Loader wraps a text extraction function with this cache: a book's already
// loaded text is used as-is, then the cache, then the extractor. Extraction
// failures are logged and yield "", which callers treat as "no text".
func (c *Cache) Loader(extract func(path string) (string, error), logger *slog.Logger) func(domain.Book) string {
	return func(book domain.Book) string {
		if book.Text != "" {
			return book.Text
		}
		if text, ok := c.Get(book.Path); ok {
			return text
		}

		text, err := extract(book.Path)
		if err != nil {
			logger.Error("failed to extract book text", "title", book.Title, "error", err)
			return ""
		}
		c.Add(book.Path, text)
		return text
	}
}
