package search

import (
	"github.com/epublic/epublic-mcp/internal/domain"
)

// maxChapters caps how many table-of-contents labels a metadata hit carries.
const maxChapters = 5

// BookSummary is one metadata search hit.
type BookSummary struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Published string   `json:"published"`
	Chapters  []string `json:"chapters"`
}

// Metadata searches book metadata by title, author, or publication year.
// Title and author use the injected matcher (exact or fuzzy); the year
// comparison is always exact substring containment, because a "close" year
// is not a meaningful match. Results follow map iteration order - callers
// needing a stable order must sort.
func Metadata(query string, books map[string]domain.Book, m Matcher) []BookSummary {
	results := []BookSummary{}

	for title, book := range books {
		titleMatch := m.Match(query, title)
		authorMatch := book.Author != "" && m.Match(query, book.Author)
		yearMatch := book.Published != "" && ExactMatch(query, book.Published)

		if !titleMatch && !authorMatch && !yearMatch {
			continue
		}

		summary := BookSummary{
			Title:     book.Title,
			Author:    book.Author,
			Published: book.Published,
			Chapters:  []string{},
		}
		if summary.Author == "" {
			summary.Author = domain.UnknownAuthor
		}
		if summary.Published == "" {
			summary.Published = domain.UnknownPublished
		}
		for _, ch := range book.TOC {
			if len(summary.Chapters) == maxChapters {
				break
			}
			summary.Chapters = append(summary.Chapters, ch.Label)
		}
		results = append(results, summary)
	}

	return results
}
