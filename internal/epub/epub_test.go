package epub

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestEPUB assembles a minimal but valid EPUB container on disk.
func writeTestEPUB(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for member, content := range files {
		fw, err := w.Create(member)
		if err != nil {
			t.Fatalf("create member %s: %v", member, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write member %s: %v", member, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close epub: %v", err)
	}
	return path
}

func testBookFiles() map[string]string {
	return map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="2.0">
  <metadata>
    <dc:title>The Test Book</dc:title>
    <dc:creator>Test Author</dc:creator>
    <dc:date>2024-03-01</dc:date>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="chapter2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`,
		"OEBPS/toc.ncx": `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1"><navLabel><text>Chapter One</text></navLabel><content src="chapter1.xhtml#c1"/>
      <navPoint id="n1a"><navLabel><text>Section 1.1</text></navLabel><content src="chapter1.xhtml#c1s1"/></navPoint>
    </navPoint>
    <navPoint id="n2"><navLabel><text>Chapter Two</text></navLabel><content src="chapter2.xhtml"/></navPoint>
  </navMap>
</ncx>`,
		"OEBPS/chapter1.xhtml": `<html><head><style>p{}</style></head><body>
<p>First paragraph of chapter one.</p>
<p>Second paragraph of chapter one.</p>
<script>ignored()</script>
</body></html>`,
		"OEBPS/chapter2.xhtml": `<html><body><p>Chapter two begins here.</p></body></html>`,
	}
}

func TestMetadata(t *testing.T) {
	path := writeTestEPUB(t, t.TempDir(), "test.epub", testBookFiles())

	book, err := NewParser().Metadata(path)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if book.Title != "The Test Book" {
		t.Errorf("title = %q, want %q", book.Title, "The Test Book")
	}
	if book.Author != "Test Author" {
		t.Errorf("author = %q, want %q", book.Author, "Test Author")
	}
	if book.Published != "2024-03-01" {
		t.Errorf("published = %q, want %q", book.Published, "2024-03-01")
	}
	if book.Path != path {
		t.Errorf("path = %q, want %q", book.Path, path)
	}
	if book.Text != "" {
		t.Errorf("Metadata must not load body text, got %d bytes", len(book.Text))
	}

	want := []struct {
		label  string
		anchor string
		depth  int
	}{
		{"Chapter One", "c1", 0},
		{"Section 1.1", "c1s1", 1},
		{"Chapter Two", "", 0},
	}
	if len(book.TOC) != len(want) {
		t.Fatalf("toc has %d entries, want %d: %+v", len(book.TOC), len(want), book.TOC)
	}
	for i, w := range want {
		got := book.TOC[i]
		if got.Label != w.label || got.AnchorID != w.anchor || got.Depth != w.depth {
			t.Errorf("toc[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestMetadata_TitleFallsBackToFileStem(t *testing.T) {
	files := testBookFiles()
	files["OEBPS/content.opf"] = strings.Replace(files["OEBPS/content.opf"],
		"<dc:title>The Test Book</dc:title>", "", 1)
	path := writeTestEPUB(t, t.TempDir(), "untitled-book.epub", files)

	book, err := NewParser().Metadata(path)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if book.Title != "untitled-book" {
		t.Errorf("title = %q, want file stem %q", book.Title, "untitled-book")
	}
}

func TestText_SpineOrderAndParagraphs(t *testing.T) {
	path := writeTestEPUB(t, t.TempDir(), "test.epub", testBookFiles())

	text, err := NewParser().Text(path)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}

	for _, want := range []string{
		"First paragraph of chapter one.",
		"Second paragraph of chapter one.",
		"Chapter two begins here.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q", want)
		}
	}
	if strings.Contains(text, "ignored()") {
		t.Error("script content leaked into body text")
	}
	if strings.Contains(text, "p{}") {
		t.Error("style content leaked into body text")
	}

	// Spine order: chapter one before chapter two.
	if strings.Index(text, "First paragraph") > strings.Index(text, "Chapter two begins") {
		t.Error("sections are not in spine order")
	}

	// Paragraphs must be separated by blank lines for downstream splitting.
	if !strings.Contains(text, "First paragraph of chapter one.\n\n") {
		t.Error("paragraph boundary missing blank line")
	}
}

func TestMetadata_MalformedContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.epub")
	if err := os.WriteFile(path, []byte("this is not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewParser().Metadata(path); err == nil {
		t.Error("expected an error for a malformed container")
	}
	if _, err := NewParser().Text(path); err == nil {
		t.Error("expected an error for a malformed container")
	}
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText([]byte(`<p>One</p><p>Two &amp; three</p><br/><div>Four</div>`))

	if !strings.Contains(got, "One\n\n") {
		t.Errorf("missing paragraph break after One: %q", got)
	}
	if !strings.Contains(got, "Two & three") {
		t.Errorf("entity not decoded: %q", got)
	}
	if !strings.Contains(got, "Four") {
		t.Errorf("div content missing: %q", got)
	}
}
