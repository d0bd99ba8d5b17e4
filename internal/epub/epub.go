// Package epub extracts metadata and plain-text bodies from EPUB containers.
// An EPUB is a zip archive: META-INF/container.xml points at an OPF package
// document, which carries the Dublin Core metadata, a manifest of content
// files, and a spine giving the reading order. The table of contents lives in
// a separate NCX document referenced from the manifest.
//
// The extractor is pure and stateless; callers own all caching.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/epublic/epublic-mcp/internal/domain"
)

// Parser reads EPUB containers from the filesystem.
type Parser struct{}

// NewParser creates an EPUB parser.
func NewParser() *Parser {
	return &Parser{}
}

// --- container.xml / OPF / NCX document shapes ---
// Field tags match by local name only, so the dc: and opf: namespaces used by
// real-world containers all resolve.

type containerDoc struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageDoc struct {
	Titles   []string       `xml:"metadata>title"`
	Creators []string       `xml:"metadata>creator"`
	Dates    []string       `xml:"metadata>date"`
	Items    []manifestItem `xml:"manifest>item"`
	Itemrefs []spineRef     `xml:"spine>itemref"`
}

type spineRef struct {
	IDRef string `xml:"idref,attr"`
}

type manifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type ncxDoc struct {
	NavPoints []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

const ncxMediaType = "application/x-dtbncx+xml"

// Metadata parses the container and returns title, author, publication date
// and the flattened table of contents. Body text is never loaded here.
// A malformed container yields an error; the caller logs and skips the file.
func (p *Parser) Metadata(bookPath string) (*domain.Book, error) {
	c, err := openContainer(bookPath)
	if err != nil {
		return nil, err
	}
	defer c.close()

	book := &domain.Book{
		// Fall back to the file stem when the container has no title.
		Title: strings.TrimSuffix(filepath.Base(bookPath), filepath.Ext(bookPath)),
		Path:  bookPath,
	}
	if t := first(c.pkg.Titles); t != "" {
		book.Title = t
	}
	book.Author = first(c.pkg.Creators)
	book.Published = first(c.pkg.Dates)
	book.TOC = c.tableOfContents()

	return book, nil
}

// Text returns the full plain-text body of the book: every spine document
// converted from XHTML to text, joined in spine order. Sections that fail to
// read are skipped; a malformed container yields "" and an error.
func (p *Parser) Text(bookPath string) (string, error) {
	c, err := openContainer(bookPath)
	if err != nil {
		return "", err
	}
	defer c.close()

	byID := make(map[string]manifestItem, len(c.pkg.Items))
	for _, item := range c.pkg.Items {
		byID[item.ID] = item
	}

	var sections []string
	for _, ref := range c.pkg.Itemrefs {
		item, ok := byID[ref.IDRef]
		if !ok {
			continue
		}
		data, err := c.readRelative(item.Href)
		if err != nil {
			continue
		}
		sections = append(sections, htmlToText(data))
	}

	return strings.Join(sections, "\n"), nil
}

// container is an opened EPUB with its package document already parsed.
type container struct {
	zr *zip.ReadCloser

	// pkg is the parsed OPF package document.
	pkg packageDoc

	// opfDir is the directory of the OPF inside the archive; manifest hrefs
	// are resolved relative to it.
	opfDir string
}

func openContainer(bookPath string) (*container, error) {
	zr, err := zip.OpenReader(bookPath)
	if err != nil {
		return nil, fmt.Errorf("open epub %s: %w", filepath.Base(bookPath), err)
	}

	c := &container{zr: zr}
	if err := c.init(); err != nil {
		zr.Close()
		return nil, fmt.Errorf("read epub %s: %w", filepath.Base(bookPath), err)
	}
	return c, nil
}

func (c *container) init() error {
	var cont containerDoc
	if err := c.readXML("META-INF/container.xml", &cont); err != nil {
		return err
	}
	if len(cont.Rootfiles) == 0 || cont.Rootfiles[0].FullPath == "" {
		return fmt.Errorf("container.xml names no rootfile")
	}

	opfPath := cont.Rootfiles[0].FullPath
	c.opfDir = path.Dir(opfPath)
	return c.readXML(opfPath, &c.pkg)
}

func (c *container) close() {
	c.zr.Close()
}

// tableOfContents flattens the NCX nav map into (label, anchor, depth)
// entries. Books without an NCX get an empty table of contents.
func (c *container) tableOfContents() []domain.TOCEntry {
	var ncxHref string
	for _, item := range c.pkg.Items {
		if item.MediaType == ncxMediaType {
			ncxHref = item.Href
			break
		}
	}
	if ncxHref == "" {
		return nil
	}

	data, err := c.readRelative(ncxHref)
	if err != nil {
		return nil
	}
	var ncx ncxDoc
	if err := unmarshalXML(data, &ncx); err != nil {
		return nil
	}

	var toc []domain.TOCEntry
	var walk func(points []navPoint, depth int)
	walk = func(points []navPoint, depth int) {
		for _, np := range points {
			anchor := np.Content.Src
			if i := strings.IndexByte(anchor, '#'); i >= 0 {
				anchor = anchor[i+1:]
			}
			toc = append(toc, domain.TOCEntry{
				Label:    strings.TrimSpace(np.Label),
				AnchorID: anchor,
				Depth:    depth,
			})
			walk(np.Children, depth+1)
		}
	}
	walk(ncx.NavPoints, 0)
	return toc
}

// readRelative reads an archive member addressed relative to the OPF.
func (c *container) readRelative(href string) ([]byte, error) {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	name := path.Clean(href)
	if c.opfDir != "." {
		name = path.Join(c.opfDir, href)
	}
	return c.read(name)
}

func (c *container) read(name string) ([]byte, error) {
	f, err := c.zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive member %s: %w", name, err)
	}
	defer f.Close()

	return io.ReadAll(f)
}

func (c *container) readXML(name string, v any) error {
	data, err := c.read(name)
	if err != nil {
		return err
	}
	if err := unmarshalXML(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func unmarshalXML(data []byte, v any) error {
	return xml.Unmarshal(data, v)
}

func first(values []string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
