package textcache

import (
	"errors"
	"testing"

	"github.com/epublic/epublic-mcp/internal/domain"
	"github.com/epublic/epublic-mcp/internal/testutil"
)

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Add("/a", "text a")
	c.Add("/b", "text b")

	// Touch /a so /b becomes the eviction candidate.
	if _, ok := c.Get("/a"); !ok {
		t.Fatal("/a missing")
	}

	c.Add("/c", "text c")

	if _, ok := c.Get("/b"); ok {
		t.Error("/b should have been evicted")
	}
	if _, ok := c.Get("/a"); !ok {
		t.Error("/a should still be cached")
	}
	if _, ok := c.Get("/c"); !ok {
		t.Error("/c should be cached")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestLoader_PrefersLoadedTextThenCache(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	extract := func(path string) (string, error) {
		calls++
		return "extracted body", nil
	}
	load := c.Loader(extract, testutil.DiscardLogger())

	// A book with text already loaded never hits the extractor.
	got := load(domain.Book{Title: "A", Path: "/a", Text: "inline body"})
	if got != "inline body" || calls != 0 {
		t.Errorf("got %q with %d extract calls", got, calls)
	}

	// First metadata-only access extracts; the second is served from cache.
	got = load(domain.Book{Title: "B", Path: "/b"})
	if got != "extracted body" || calls != 1 {
		t.Errorf("got %q with %d extract calls", got, calls)
	}
	got = load(domain.Book{Title: "B", Path: "/b"})
	if got != "extracted body" || calls != 1 {
		t.Errorf("cache miss on second access: %q, %d calls", got, calls)
	}
}

func TestLoader_ExtractionFailureYieldsEmpty(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatal(err)
	}

	load := c.Loader(func(string) (string, error) {
		return "", errors.New("malformed container")
	}, testutil.DiscardLogger())

	if got := load(domain.Book{Title: "Bad", Path: "/bad"}); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if c.Len() != 0 {
		t.Error("failed extraction must not be cached")
	}
}
