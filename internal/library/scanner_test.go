package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/epublic/epublic-mcp/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.epub"), "epub")
	writeFile(t, filepath.Join(dir, "sub", "b.EPUB"), "epub upper")
	writeFile(t, filepath.Join(dir, "c.mobi"), "mobi")  // supported format, not parseable
	writeFile(t, filepath.Join(dir, "d.txt"), "not a book")

	paths := Discover([]string{dir}, testutil.DiscardLogger())

	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2: %v", len(paths), paths)
	}
	for _, p := range paths {
		if filepath.Ext(p) != ".epub" && filepath.Ext(p) != ".EPUB" {
			t.Errorf("unexpected path %s", p)
		}
	}
}

func TestDiscover_MissingRootIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.epub"), "epub")

	paths := Discover([]string{filepath.Join(dir, "does-not-exist"), dir}, testutil.DiscardLogger())

	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1: %v", len(paths), paths)
	}
}

func TestNormalizeRoots_EnvFallback(t *testing.T) {
	t.Setenv(LibraryPathsEnv, "/books/a"+string(os.PathListSeparator)+"/books/b")

	roots := NormalizeRoots(nil)
	if len(roots) != 2 || roots[0] != "/books/a" || roots[1] != "/books/b" {
		t.Errorf("roots = %v", roots)
	}

	// Explicit paths win over the environment.
	roots = NormalizeRoots([]string{"/explicit"})
	if len(roots) != 1 || roots[0] != "/explicit" {
		t.Errorf("roots = %v", roots)
	}
}

func TestComputeSignature_SortedAndSensitive(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.epub")
	b := filepath.Join(dir, "b.epub")
	writeFile(t, b, "second")
	writeFile(t, a, "first")

	sig := ComputeSignature([]string{b, a}, []string{dir})

	if sig.Count != 2 || len(sig.Entries) != 2 {
		t.Fatalf("signature = %+v", sig)
	}
	if sig.Entries[0].Path != a || sig.Entries[1].Path != b {
		t.Errorf("entries not sorted by path: %+v", sig.Entries)
	}
	if !sig.Equal(ComputeSignature([]string{a, b}, []string{dir})) {
		t.Error("signature should not depend on input path order")
	}

	// Changing one file's size must change the signature.
	writeFile(t, a, "first, but longer now")
	if sig.Equal(ComputeSignature([]string{a, b}, []string{dir})) {
		t.Error("signature unchanged after file size change")
	}

	// So must touching the mtime alone.
	writeFile(t, a, "first")
	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(a, later, later); err != nil {
		t.Fatal(err)
	}
	if sig.Equal(ComputeSignature([]string{a, b}, []string{dir})) {
		t.Error("signature unchanged after mtime change")
	}
}

func TestComputeSignature_StatFailuresDropped(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.epub")
	writeFile(t, a, "content")

	sig := ComputeSignature([]string{a, filepath.Join(dir, "gone.epub")}, nil)
	if sig.Count != 1 {
		t.Errorf("count = %d, want 1", sig.Count)
	}
}
