// Package index maintains the persistent paragraph-level full-text index.
//
// The index is a SQLite FTS5 table with one row per paragraph, carrying the
// book title, author, a location label, and the neighbouring paragraphs as
// ready-made context. Ranking uses FTS5's bm25(), a lower-is-better
// statistic that the query layer maps onto a bounded [0,1] relevance.
//
// A sidecar file next to the index stores the content signature of the books
// that fed the last build; Ensure is a no-op while that signature still
// matches. Rebuilds always drop and recreate the whole index - it is never
// patched incrementally. Both the index and the sidecar are replaced via
// write-to-temp-then-rename so concurrent readers never see a partial file.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/epublic/epublic-mcp/internal/domain"
	"github.com/epublic/epublic-mcp/internal/library"
)

// RebuildEnv forces a rebuild on every Ensure while set to "1".
const RebuildEnv = "EPUBLIC_REBUILD_INDEX"

// MatchExact and MatchFuzzy are the accepted filter match strategies.
const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
)

// TextLoader supplies a book's body text on demand during an index build.
// It typically consults the text cache before parsing the container.
type TextLoader func(domain.Book) string

// Index is the handle to the on-disk FTS index. Single-writer: only one
// Ensure builds at a time; queries share the same connection pool.
type Index struct {
	path   string
	force  bool
	logger *slog.Logger

	// mu serializes builds against in-flight queries: Ensure's rebuild takes
	// the write side, Search the read side.
	mu sync.RWMutex

	dbMu sync.Mutex
	db   *sql.DB
}

// New creates a handle for the index at path. When force is true, every
// Ensure call rebuilds regardless of the stored signature - an operator
// escape hatch, not steady state.
func New(path string, force bool, logger *slog.Logger) *Index {
	return &Index{path: path, force: force, logger: logger}
}

// Close releases the database handle.
func (ix *Index) Close() error {
	ix.dbMu.Lock()
	defer ix.dbMu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

// sidecarPath is where the content signature of the last build lives.
func (ix *Index) sidecarPath() string {
	return ix.path + ".sig"
}

// Ensure guarantees a queryable index reflecting books as of the most recent
// build. It is a no-op iff the stored sidecar signature equals the freshly
// computed one, the index file exists, and no rebuild is forced.
func (ix *Index) Ensure(ctx context.Context, books map[string]domain.Book, loadText TextLoader) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	paths := make([]string, 0, len(books))
	for _, b := range books {
		paths = append(paths, b.Path)
	}
	signature := library.ComputeSignature(paths, nil)

	if !ix.force && ix.current(signature) {
		_, err := ix.open()
		return err
	}

	start := time.Now()
	count, err := ix.build(ctx, books, loadText)
	if err != nil {
		return err
	}
	if err := ix.writeSidecar(signature); err != nil {
		return err
	}

	ix.logger.Info("built full-text index",
		"paragraphs", count,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	_, err = ix.open()
	return err
}

// current reports whether the existing index already reflects the signature.
func (ix *Index) current(signature domain.Signature) bool {
	if _, err := os.Stat(ix.path); err != nil {
		return false
	}
	data, err := os.ReadFile(ix.sidecarPath())
	if err != nil {
		return false
	}
	var stored domain.Signature
	if err := json.Unmarshal(data, &stored); err != nil {
		// Corrupt sidecar: treat as absent and rebuild.
		return false
	}
	return stored.Equal(signature)
}

// build writes a fresh index into a temporary file and renames it over the
// target. Books with no text or no paragraphs are skipped.
func (ix *Index) build(ctx context.Context, books map[string]domain.Book, loadText TextLoader) (int, error) {
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return 0, fmt.Errorf("create index dir: %w", err)
	}

	tmp := ix.path + ".tmp"
	os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return 0, fmt.Errorf("open index build file: %w", err)
	}

	count, err := populate(ctx, db, sortedBooks(books), loadText)
	closeErr := db.Close()
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if closeErr != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("close index build file: %w", closeErr)
	}

	// Swap in the finished index; close the stale handle first.
	if err := ix.Close(); err != nil {
		ix.logger.Warn("closing stale index handle", "error", err)
	}
	if err := os.Rename(tmp, ix.path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("replace index: %w", err)
	}
	return count, nil
}

func populate(ctx context.Context, db *sql.DB, books []domain.Book, loadText TextLoader) (int, error) {
	if _, err := db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE paragraphs_fts USING fts5(
			text, book_title, author, location, context_before, context_after)`,
	); err != nil {
		return 0, fmt.Errorf("create fts table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin index build: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO paragraphs_fts
			(text, book_title, author, location, context_before, context_after)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, book := range books {
		text := book.Text
		if text == "" && loadText != nil {
			text = loadText(book)
		}
		if text == "" {
			continue
		}

		paragraphs := splitParagraphs(text)
		if len(paragraphs) == 0 {
			continue
		}

		author := book.Author
		if author == "" {
			author = domain.UnknownAuthor
		}
		location := domain.UnknownSection
		if len(book.TOC) > 0 {
			location = book.TOC[0].Label
		}

		for i, paragraph := range paragraphs {
			before, after := "", ""
			if i > 0 {
				before = normalizeSpace(paragraphs[i-1])
			}
			if i+1 < len(paragraphs) {
				after = normalizeSpace(paragraphs[i+1])
			}
			if _, err := stmt.ExecContext(ctx,
				normalizeSpace(paragraph), book.Title, author, location, before, after,
			); err != nil {
				return 0, fmt.Errorf("index paragraph of %q: %w", book.Title, err)
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit index build: %w", err)
	}
	return count, nil
}

func (ix *Index) writeSidecar(signature domain.Signature) error {
	data, err := json.Marshal(signature)
	if err != nil {
		return fmt.Errorf("marshal signature: %w", err)
	}
	tmp := ix.sidecarPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write signature: %w", err)
	}
	if err := os.Rename(tmp, ix.sidecarPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace signature: %w", err)
	}
	return nil
}

func (ix *Index) open() (*sql.DB, error) {
	ix.dbMu.Lock()
	defer ix.dbMu.Unlock()
	if ix.db != nil {
		return ix.db, nil
	}
	db, err := sql.Open("sqlite", ix.path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	ix.db = db
	return db, nil
}

// Query describes one topic search against the index. Topics are ORed as
// literal phrases; filters are ANDed with the topic condition and each other.
type Query struct {
	Topics       []string
	BookFilter   string
	AuthorFilter string
	MatchType    string // MatchExact or MatchFuzzy, applies to the filters
	Limit        int    // 0 means unbounded, not "no results"
	Offset       int
}

// Search runs the query and returns the full envelope: the total match count
// (ignoring pagination) plus one page of hits ordered by descending
// relevance, ties broken by rowid so pagination is order-stable.
func (ix *Index) Search(ctx context.Context, q Query) (*domain.TopicResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	db, err := ix.open()
	if err != nil {
		return nil, err
	}

	where := []string{"paragraphs_fts MATCH ?"}
	args := []any{ftsQuery(q.Topics)}

	if q.BookFilter != "" {
		if q.MatchType == MatchExact {
			where = append(where, "book_title = ? COLLATE NOCASE")
			args = append(args, q.BookFilter)
		} else {
			where = append(where, "book_title LIKE ?")
			args = append(args, "%"+q.BookFilter+"%")
		}
	}
	if q.AuthorFilter != "" {
		if q.MatchType == MatchExact {
			where = append(where, "author = ? COLLATE NOCASE")
			args = append(args, q.AuthorFilter)
		} else {
			where = append(where, "author LIKE ?")
			args = append(args, "%"+q.AuthorFilter+"%")
		}
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM paragraphs_fts WHERE "+whereSQL, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}

	pageSQL := `SELECT text, book_title, author, location, context_before, context_after,
			bm25(paragraphs_fts) AS score
		FROM paragraphs_fts WHERE ` + whereSQL + `
		ORDER BY score ASC, rowid ASC`
	pageArgs := args
	switch {
	case q.Limit > 0:
		pageSQL += " LIMIT ? OFFSET ?"
		pageArgs = append(pageArgs, q.Limit, q.Offset)
	case q.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
		pageSQL += " LIMIT -1 OFFSET ?"
		pageArgs = append(pageArgs, q.Offset)
	}

	rows, err := db.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	results := []domain.TopicHit{}
	for rows.Next() {
		var hit domain.TopicHit
		var score sql.NullFloat64
		if err := rows.Scan(&hit.Text, &hit.BookTitle, &hit.Author, &hit.Location,
			&hit.ContextBefore, &hit.ContextAfter, &score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hit.RelevanceScore = relevance(score)
		results = append(results, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}

	return &domain.TopicResult{
		TotalResults: total,
		Offset:       q.Offset,
		Limit:        q.Limit,
		Results:      results,
	}, nil
}

// ftsQuery builds `"topic1" OR "topic2" ...`, each topic a literal phrase.
func ftsQuery(topics []string) string {
	terms := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

// relevance maps bm25's lower-is-better statistic onto [0,1], higher is
// better, rounded to 3 decimals. A missing score maps to 0.
func relevance(score sql.NullFloat64) float64 {
	if !score.Valid {
		return 0
	}
	r := 1.0 / (1.0 + math.Abs(score.Float64))
	r = math.Max(0, math.Min(1, r))
	return math.Round(r*1000) / 1000
}

func sortedBooks(books map[string]domain.Book) []domain.Book {
	out := make([]domain.Book, 0, len(books))
	for _, b := range books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}
