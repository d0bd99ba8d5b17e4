package epub

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// blockTags are elements whose end emits a blank line. The blank line matters:
// paragraph splitting downstream keys on "\n\n" boundaries.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"li": {}, "blockquote": {},
}

// htmlToText converts an XHTML section to plain text. Script and style
// content is dropped; block element boundaries become blank lines.
func htmlToText(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))

	var sb strings.Builder
	skip := 0 // depth inside <script>/<style>

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way, return what we have.
			return sb.String()

		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}

		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br":
				// Some containers write <br> unclosed.
				sb.WriteString("\n\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
				continue
			}
			if _, ok := blockTags[tag]; ok {
				sb.WriteString("\n\n")
			}

		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, ok := blockTags[string(name)]; ok {
				sb.WriteString("\n\n")
			}
		}
	}
}
