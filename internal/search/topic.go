package search

import (
	"context"
	"errors"

	"github.com/epublic/epublic-mcp/internal/domain"
	"github.com/epublic/epublic-mcp/internal/index"
)

// ErrMatchType rejects match_type values outside {exact, fuzzy}.
// It is an input error, not an index fault.
var ErrMatchType = errors.New(`match_type must be "exact" or "fuzzy"`)

// TopicOptions describes one topic search request.
type TopicOptions struct {
	// Topic is a single topic; Topics takes precedence when both are given.
	Topic  string
	Topics []string

	// Limit bounds the page size; 0 means unbounded, not "no results".
	Limit  int
	Offset int

	// BookFilter and AuthorFilter are ANDed with the topic condition and
	// with each other when both are present.
	BookFilter   string
	AuthorFilter string

	// MatchType selects the filter strategy: exact (case-insensitive
	// equality) or fuzzy (case-insensitive substring containment).
	MatchType string
}

// Topic finds attributed paragraph excerpts matching any of the topics.
// It brings the index up to date against the supplied records first; an
// index build failure is fatal to the call. No topics (or only empty
// strings) yields an immediate empty envelope without touching storage.
func Topic(ctx context.Context, opts TopicOptions, books map[string]domain.Book,
	ix *index.Index, loadText index.TextLoader) (*domain.TopicResult, error) {

	topics := normalizeTopics(opts.Topic, opts.Topics)
	if len(topics) == 0 {
		return &domain.TopicResult{
			TotalResults: 0,
			Offset:       opts.Offset,
			Limit:        opts.Limit,
			Results:      []domain.TopicHit{},
		}, nil
	}

	if opts.MatchType != index.MatchExact && opts.MatchType != index.MatchFuzzy {
		return nil, ErrMatchType
	}

	if err := ix.Ensure(ctx, books, loadText); err != nil {
		return nil, err
	}

	return ix.Search(ctx, index.Query{
		Topics:       topics,
		BookFilter:   opts.BookFilter,
		AuthorFilter: opts.AuthorFilter,
		MatchType:    opts.MatchType,
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	})
}

// normalizeTopics merges the single topic and the topic list into one
// de-duplicated, ordered list with empty strings dropped.
func normalizeTopics(topic string, topics []string) []string {
	list := topics
	if len(list) == 0 && topic != "" {
		list = []string{topic}
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, t := range list {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
