package library

import (
	"context"
	"log/slog"
	"sync"

	"github.com/epublic/epublic-mcp/internal/domain"
)

// Library owns the current in-memory snapshot of book records.
//
// A completed refresh publishes a new snapshot atomically: readers see either
// the old or the new map in full, never a mix. Queries running concurrently
// with a background refresh keep the snapshot that was current when they
// started. A refresh that fails keeps the previous snapshot.
type Library struct {
	store  *Store
	logger *slog.Logger

	mu    sync.RWMutex
	books map[string]domain.Book
}

// New creates a Library with an empty snapshot.
func New(store *Store, logger *slog.Logger) *Library {
	return &Library{
		store:  store,
		logger: logger,
		books:  map[string]domain.Book{},
	}
}

// Init populates the snapshot at startup, preferring the blind cache read
// over a full scan. Returns whether the books came from the cache.
func (l *Library) Init(ctx context.Context, roots []string) bool {
	books, fromCache := l.store.Get(ctx, roots)
	l.swap(books)
	return fromCache
}

// Snapshot returns the current book map. The map is replaced wholesale on
// refresh and must be treated as read-only by callers.
func (l *Library) Snapshot() map[string]domain.Book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.books
}

// Len reports the number of books in the current snapshot.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.books)
}

// Refresh re-verifies the library against disk and swaps in the result.
func (l *Library) Refresh(ctx context.Context, roots []string) error {
	books, err := l.store.Refresh(ctx, roots)
	if err != nil {
		return err
	}
	l.swap(books)
	return nil
}

// RefreshAsync runs Refresh on a background goroutine, fire-and-forget.
// Failures are logged; the previous snapshot stays current.
func (l *Library) RefreshAsync(roots []string) {
	go func() {
		if err := l.Refresh(context.Background(), roots); err != nil {
			l.logger.Error("background refresh failed", "error", err)
			return
		}
		l.logger.Info("background refresh complete", "books", l.Len())
	}()
}

func (l *Library) swap(books map[string]domain.Book) {
	l.mu.Lock()
	l.books = books
	l.mu.Unlock()
}
