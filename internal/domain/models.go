// Package domain contains the core data types shared across the server.
// These are pure data structures with no behavior beyond serialization -
// think of them as the "nouns" of the application.
package domain

import (
	"encoding/json"
	"fmt"
)

// UnknownAuthor is substituted when a book carries no creator metadata.
const UnknownAuthor = "Unknown"

// UnknownPublished is substituted when a book carries no publication date.
const UnknownPublished = "Unknown"

// UnknownSection is the location label for books without a table of contents.
const UnknownSection = "Unknown section"

// TOCEntry is one entry of a book's table of contents.
//
// On the wire (metadata cache file, tool responses) it is a 3-tuple
// [label, anchor_id, depth] rather than an object, matching the cache format.
type TOCEntry struct {
	// Label is the human-readable chapter title.
	Label string

	// AnchorID points at the chapter inside the container (may be empty).
	AnchorID string

	// Depth is the nesting level in the nav tree, 0 for top-level entries.
	Depth int
}

// MarshalJSON encodes the entry as [label, anchor_id, depth].
func (e TOCEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Label, e.AnchorID, e.Depth})
}

// UnmarshalJSON decodes [label, anchor_id, depth], tolerating short tuples
// from older cache files (missing anchor or depth default to zero values).
func (e *TOCEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("toc entry must be an array: %w", err)
	}
	*e = TOCEntry{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw[0], &e.Label); err != nil {
			return fmt.Errorf("toc entry label: %w", err)
		}
	}
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &e.AnchorID); err != nil {
			return fmt.Errorf("toc entry anchor: %w", err)
		}
	}
	if len(raw) > 2 {
		if err := json.Unmarshal(raw[2], &e.Depth); err != nil {
			return fmt.Errorf("toc entry depth: %w", err)
		}
	}
	return nil
}

// Book is a single book of the library: metadata plus an optionally loaded
// body. Title is the de-duplication key across the whole library - two files
// resolving to the same title collide and the later one wins.
type Book struct {
	// Title is the unique key of the book within the library.
	Title string `json:"title"`

	// Author is the first creator from the container metadata, or "".
	Author string `json:"author"`

	// Published is a free-form date/year string, or "".
	Published string `json:"published"`

	// Path is the location of the source file on disk.
	Path string `json:"path"`

	// TOC is the flattened table of contents, in reading order.
	TOC []TOCEntry `json:"toc"`

	// Text is the full plain-text body. It is lazily populated; a Book with
	// empty Text is a valid metadata-only state.
	Text string `json:"-"`
}

// SignatureEntry fingerprints a single file of the library.
type SignatureEntry struct {
	Path  string `json:"path"`
	MTime int64  `json:"mtime"` // unix nanoseconds
	Size  int64  `json:"size"`
}

// Signature fingerprints a set of files (path + mtime + size per file).
// Two signatures are equal iff the root lists and every entry tuple match.
// It decides whether a metadata rescan or an index rebuild is necessary.
type Signature struct {
	Roots   []string         `json:"roots,omitempty"`
	Count   int              `json:"count"`
	Entries []SignatureEntry `json:"entries"`
}

// Equal reports whether two signatures describe the same library state.
func (s Signature) Equal(other Signature) bool {
	if len(s.Roots) != len(other.Roots) || s.Count != other.Count || len(s.Entries) != len(other.Entries) {
		return false
	}
	for i, r := range s.Roots {
		if other.Roots[i] != r {
			return false
		}
	}
	for i, e := range s.Entries {
		if other.Entries[i] != e {
			return false
		}
	}
	return true
}

// TopicHit is a single attributed paragraph excerpt from a topic search.
type TopicHit struct {
	Text           string  `json:"text"`
	BookTitle      string  `json:"book_title"`
	Author         string  `json:"author"`
	Location       string  `json:"location"`
	ContextBefore  string  `json:"context_before"`
	ContextAfter   string  `json:"context_after"`
	RelevanceScore float64 `json:"relevance_score"`
}

// TopicResult is the envelope returned by a topic search.
// TotalResults counts all matches regardless of pagination.
type TopicResult struct {
	TotalResults int        `json:"total_results"`
	Offset       int        `json:"offset"`
	Limit        int        `json:"limit"`
	Results      []TopicHit `json:"results"`
}
