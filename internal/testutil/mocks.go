// Package testutil provides shared test helpers and mock implementations.
// This avoids duplicating mock code across test files.
package testutil

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/epublic/epublic-mcp/internal/domain"
)

// ErrNotFound is returned by mocks when a resource doesn't exist.
var ErrNotFound = errors.New("not found")

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SpyExtractor is a controllable Extractor that records how often each path
// was parsed. It lets cache tests assert that a parse was (or was not)
// performed without touching real EPUB files.
type SpyExtractor struct {
	mu sync.Mutex

	// Books maps path -> metadata returned by Metadata.
	Books map[string]domain.Book

	// Texts maps path -> body returned by Text.
	Texts map[string]string

	// MetadataCalls and TextCalls count invocations per path.
	MetadataCalls map[string]int
	TextCalls     map[string]int
}

// NewSpyExtractor creates a SpyExtractor with initialized maps.
func NewSpyExtractor() *SpyExtractor {
	return &SpyExtractor{
		Books:         make(map[string]domain.Book),
		Texts:         make(map[string]string),
		MetadataCalls: make(map[string]int),
		TextCalls:     make(map[string]int),
	}
}

// AddBook registers a book under its path for both metadata and text calls.
func (e *SpyExtractor) AddBook(book domain.Book) {
	e.mu.Lock()
	defer e.mu.Unlock()
	text := book.Text
	book.Text = ""
	e.Books[book.Path] = book
	e.Texts[book.Path] = text
}

func (e *SpyExtractor) Metadata(path string) (*domain.Book, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.MetadataCalls[path]++
	book, ok := e.Books[path]
	if !ok {
		return nil, ErrNotFound
	}
	return &book, nil
}

func (e *SpyExtractor) Text(path string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TextCalls[path]++
	text, ok := e.Texts[path]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

// TotalMetadataCalls sums parse counts across all paths.
func (e *SpyExtractor) TotalMetadataCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.MetadataCalls {
		total += n
	}
	return total
}
