package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/epublic/epublic-mcp/internal/domain"
)

// ErrNoRoots is returned by Refresh when no library roots are configured.
var ErrNoRoots = errors.New("no library paths configured (set EPUBLIC_LIBRARY_PATHS or pass -library-path)")

// Extractor turns a book file into metadata or body text.
// The epub package provides the production implementation; tests inject spies.
type Extractor interface {
	// Metadata parses the container without loading body text.
	Metadata(path string) (*domain.Book, error)

	// Text returns the full plain-text body, "" for malformed containers.
	Text(path string) (string, error)
}

// Store persists the metadata cache: a JSON file mapping the library roots
// and their signature to the parsed book records (never body text).
//
// The file is single-writer, multi-reader: every save writes a temporary
// file and atomically renames it over the target, so a reader never observes
// a half-written cache.
type Store struct {
	path      string
	extractor Extractor
	logger    *slog.Logger
}

// NewStore creates a Store persisting to the given file path.
func NewStore(path string, extractor Extractor, logger *slog.Logger) *Store {
	return &Store{path: path, extractor: extractor, logger: logger}
}

// cachePayload is the on-disk shape of the metadata cache.
type cachePayload struct {
	Roots     []string         `json:"roots"`
	Signature domain.Signature `json:"signature"`
	Books     []bookPayload    `json:"books"`
}

type bookPayload struct {
	Title     string            `json:"title"`
	Author    string            `json:"author"`
	Published string            `json:"published"`
	Path      string            `json:"path"`
	TOC       []domain.TOCEntry `json:"toc"`
}

// Load reads the persisted cache without touching the filesystem beyond the
// cache file itself. It returns the stored records and true iff the cache
// exists, parses, and was built for exactly the requested roots. The records
// may be stale versus disk; callers resolve that with a background Refresh.
func (s *Store) Load(roots []string) (map[string]domain.Book, bool) {
	payload := s.read()
	if payload == nil {
		return nil, false
	}
	if !sameRoots(payload.Roots, roots) {
		return nil, false
	}

	books := booksFromPayload(payload)
	s.logger.Info("loaded metadata cache", "books", len(books))
	return books, true
}

// Refresh walks the roots and rebuilds the cache if the library changed.
// The walk always happens; the per-file metadata parse is skipped when the
// fresh signature equals the stored one. Per-file extraction failures are
// logged and skipped, never aborting the whole refresh.
func (s *Store) Refresh(ctx context.Context, roots []string) (map[string]domain.Book, error) {
	roots = NormalizeRoots(roots)
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}

	paths := Discover(roots, s.logger)
	signature := ComputeSignature(paths, roots)

	if cached := s.read(); cached != nil && cached.Signature.Equal(signature) {
		s.logger.Info("metadata cache is up to date")
		return booksFromPayload(cached), nil
	}

	start := time.Now()
	books := s.scan(ctx, paths)

	payload := &cachePayload{
		Roots:     roots,
		Signature: signature,
		Books:     make([]bookPayload, 0, len(books)),
	}
	for _, b := range books {
		payload.Books = append(payload.Books, bookPayload{
			Title:     b.Title,
			Author:    b.Author,
			Published: b.Published,
			Path:      b.Path,
			TOC:       b.TOC,
		})
	}
	if err := s.write(payload); err != nil {
		return nil, fmt.Errorf("save metadata cache: %w", err)
	}

	s.logger.Info("rebuilt metadata cache",
		"books", len(books),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return books, nil
}

// Get is the fast-path composition: trust the cache blindly if present,
// otherwise fall back to a full Refresh. The bool reports whether the result
// came from the cache.
func (s *Store) Get(ctx context.Context, roots []string) (map[string]domain.Book, bool) {
	roots = NormalizeRoots(roots)
	if books, ok := s.Load(roots); ok && len(books) > 0 {
		return books, true
	}

	books, err := s.Refresh(ctx, roots)
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		return map[string]domain.Book{}, false
	}
	return books, false
}

// scan parses metadata for every path on a bounded worker pool. Results are
// collected per path and applied in discovery order so that on a title
// collision the later file deterministically wins.
func (s *Store) scan(ctx context.Context, paths []string) map[string]domain.Book {
	parsed := make([]*domain.Book, len(paths))

	p := pool.New().WithMaxGoroutines(runtime.NumCPU())
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			s.logger.Info("parsing metadata", "file", filepath.Base(path))
			book, err := s.extractor.Metadata(path)
			if err != nil {
				s.logger.Error("failed to parse book", "file", filepath.Base(path), "error", err)
				return
			}
			parsed[i] = book
		})
	}
	p.Wait()

	books := make(map[string]domain.Book, len(parsed))
	for _, b := range parsed {
		if b != nil {
			books[b.Title] = *b
		}
	}
	return books
}

// read loads the cache file; any failure is treated as "cache absent".
func (s *Store) read() *cachePayload {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var payload cachePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Warn("metadata cache unreadable, treating as absent", "error", err)
		return nil
	}
	return &payload
}

// write persists the payload via write-to-temp-then-rename.
func (s *Store) write(payload *cachePayload) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "metadata-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

func booksFromPayload(payload *cachePayload) map[string]domain.Book {
	books := make(map[string]domain.Book, len(payload.Books))
	for _, item := range payload.Books {
		books[item.Title] = domain.Book{
			Title:     item.Title,
			Author:    item.Author,
			Published: item.Published,
			Path:      item.Path,
			TOC:       item.TOC,
		}
	}
	return books
}

func sameRoots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
