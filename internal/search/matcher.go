// Package search is the query layer: metadata search over the current
// library snapshot and topic search over the full-text index.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultFuzzyThreshold is the minimum token-set similarity (0-100) for a
// fuzzy match.
const DefaultFuzzyThreshold = 80

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// Matcher decides whether a query matches a metadata field. The fuzzy
// capability is resolved once at startup and injected, so tests can force
// either behavior deterministically.
type Matcher struct {
	fuzzy     bool
	threshold int
}

// NewMatcher creates a Matcher. With fuzzy disabled it behaves exactly like
// ExactMatch. A non-positive threshold falls back to the default.
func NewMatcher(fuzzy bool, threshold int) Matcher {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return Matcher{fuzzy: fuzzy, threshold: threshold}
}

// Match reports whether query matches target under the configured strategy.
func (m Matcher) Match(query, target string) bool {
	if !m.fuzzy {
		return ExactMatch(query, target)
	}
	return TokenSetRatio(query, target) >= m.threshold
}

// ExactMatch reports case-insensitive substring containment.
func ExactMatch(query, target string) bool {
	return strings.Contains(strings.ToLower(target), strings.ToLower(query))
}

// TokenSetRatio scores the similarity of two strings on a 0-100 scale using
// a normalized token-set comparison: both inputs are tokenized into word
// sets, and the best Levenshtein ratio among the intersection and the two
// intersection+remainder strings wins. Word order and duplication do not
// hurt the score, which is what metadata queries need ("tolkien j r r"
// should match "J. R. R. Tolkien").
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(inter, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(base, withA)
	if r := ratio(base, withB); r > best {
		best = r
	}
	if r := ratio(withA, withB); r > best {
		best = r
	}
	if best < 0 {
		best = 0
	}
	return best
}

// ratio is a 0-100 similarity derived from Levenshtein distance.
func ratio(a, b string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	total := len([]rune(a)) + len([]rune(b))
	dist := levenshtein.ComputeDistance(a, b)
	return (total - 2*dist) * 100 / total
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
