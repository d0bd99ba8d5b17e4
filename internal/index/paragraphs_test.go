package index

import "testing"

func TestSplitParagraphs(t *testing.T) {
	got := splitParagraphs("First one.\n\n  \n\nSecond\nwith a line break.\n\n\n\nThird.")

	want := []string{"First one.", "Second\nwith a line break.", "Third."}
	if len(got) != len(want) {
		t.Fatalf("got %d paragraphs: %q", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitParagraphs_Empty(t *testing.T) {
	if got := splitParagraphs(""); len(got) != 0 {
		t.Errorf("empty text produced %q", got)
	}
	if got := splitParagraphs("   \n\n \t "); len(got) != 0 {
		t.Errorf("whitespace-only text produced %q", got)
	}
}

func TestNormalizeSpace(t *testing.T) {
	got := normalizeSpace("  spread \n across\t\tlines  ")
	if got != "spread across lines" {
		t.Errorf("got %q", got)
	}
}
