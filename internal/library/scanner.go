// Package library discovers book files, maintains the persisted metadata
// cache, and owns the in-memory snapshot of the library that queries read.
package library

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/epublic/epublic-mcp/internal/domain"
)

// LibraryPathsEnv lists root directories when none are passed explicitly,
// separated by the OS path-list separator.
const LibraryPathsEnv = "EPUBLIC_LIBRARY_PATHS"

// supportedFormats are the extensions the scanner recognizes as books.
// Only .epub is actually parseable; the others are discovered but skipped.
var supportedFormats = map[string]struct{}{
	".epub": {},
	".mobi": {},
	".azw3": {},
	".azw":  {},
}

// NormalizeRoots resolves the root directory list: explicit paths win, then
// the environment. A leading "~" is expanded to the user's home directory.
func NormalizeRoots(paths []string) []string {
	if len(paths) == 0 {
		if env := os.Getenv(LibraryPathsEnv); env != "" {
			paths = strings.Split(env, string(os.PathListSeparator))
		}
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, expandHome(p))
	}
	return out
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Discover walks the roots and returns paths of parseable book files, in
// walk order. Roots that do not exist are skipped. Files in a supported but
// unparseable format (.mobi, .azw) are silently dropped - a known limitation.
// An empty result is a warning-level condition, not an error.
func Discover(roots []string, logger *slog.Logger) []string {
	var paths []string

	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if _, ok := supportedFormats[ext]; !ok {
				return nil
			}
			if ext != ".epub" {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
	}

	if len(paths) == 0 {
		logger.Warn("no books found in search paths", "roots", strings.Join(roots, ", "))
	}
	return paths
}

// ComputeSignature fingerprints the given files (path + mtime + size each),
// entries sorted by path. Files that fail to stat are dropped. Pass nil roots
// for a content signature that is independent of how the files were found.
func ComputeSignature(paths []string, roots []string) domain.Signature {
	entries := make([]domain.SignatureEntry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, domain.SignatureEntry{
			Path:  p,
			MTime: info.ModTime().UnixNano(),
			Size:  info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return domain.Signature{
		Roots:   roots,
		Count:   len(entries),
		Entries: entries,
	}
}
