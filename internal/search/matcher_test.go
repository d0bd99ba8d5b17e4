package search

import "testing"

func TestExactMatch(t *testing.T) {
	tests := []struct {
		query, target string
		want          bool
	}{
		{"tolkien", "J. R. R. Tolkien", true},
		{"TOLKIEN", "j. r. r. tolkien", true},
		{"the hobbit", "The Hobbit", true},
		{"hobbit", "The Hobbit", true},
		{"2024", "2024-03-01", true},
		{"rings", "The Hobbit", false},
		{"", "anything", true}, // empty query is contained everywhere
	}
	for _, tt := range tests {
		if got := ExactMatch(tt.query, tt.target); got != tt.want {
			t.Errorf("ExactMatch(%q, %q) = %v, want %v", tt.query, tt.target, got, tt.want)
		}
	}
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  int // want score >= min
		max  int // want score <= max
	}{
		{"identical", "the hobbit", "the hobbit", 100, 100},
		{"word order ignored", "tolkien j r r", "j r r tolkien", 100, 100},
		{"punctuation ignored", "J.R.R. Tolkien", "j r r tolkien", 100, 100},
		{"subset scores high", "hobbit", "the hobbit", 80, 100},
		{"disjoint scores low", "moby dick", "the hobbit", 0, 40},
		{"empty side", "", "the hobbit", 0, 0},
	}
	for _, tt := range tests {
		got := TokenSetRatio(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("%s: TokenSetRatio(%q, %q) = %d, want in [%d,%d]",
				tt.name, tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestTokenSetRatio_Symmetric(t *testing.T) {
	a, b := "the fellowship of the ring", "fellowship ring"
	if TokenSetRatio(a, b) != TokenSetRatio(b, a) {
		t.Errorf("asymmetric: %d vs %d", TokenSetRatio(a, b), TokenSetRatio(b, a))
	}
}

func TestMatcher_ExactModeIsSubstring(t *testing.T) {
	m := NewMatcher(false, 0)

	if !m.Match("hobbit", "The Hobbit") {
		t.Error("substring should match in exact mode")
	}
	if m.Match("tolkein", "Tolkien") { // typo
		t.Error("exact mode must not tolerate typos")
	}
}

func TestMatcher_FuzzyModeToleratesNoiseAboveThreshold(t *testing.T) {
	m := NewMatcher(true, 0)

	if !m.Match("tolkien j r r", "J. R. R. Tolkien") {
		t.Error("reordered tokens should match in fuzzy mode")
	}
	if m.Match("dickens", "J. R. R. Tolkien") {
		t.Error("unrelated author matched in fuzzy mode")
	}
}

func TestNewMatcher_ThresholdDefault(t *testing.T) {
	strict := NewMatcher(true, 100)
	if strict.threshold != 100 {
		t.Errorf("threshold = %d, want 100", strict.threshold)
	}

	def := NewMatcher(true, 0)
	if def.threshold != DefaultFuzzyThreshold {
		t.Errorf("threshold = %d, want default %d", def.threshold, DefaultFuzzyThreshold)
	}
}
