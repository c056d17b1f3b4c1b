package html

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles HTML documents, such as procedures exported from a wiki.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the extractor name.
func (n *Normaliser) Name() string {
	return "html"
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Extract tokenises the markup, dropping scripts, styles and the head.
func (n *Normaliser) Extract(_ context.Context, filename string, content []byte) (*driven.Extraction, error) {
	if content == nil {
		return nil, domain.ErrInvalidInput
	}

	doc := render(string(content))
	title := doc.title
	if title == "" {
		title = plaintext.TitleFromFilename(filename)
	}

	return &driven.Extraction{
		Title:    title,
		Text:     doc.body,
		Metadata: map[string]any{"format": "html"},
	}, nil
}

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
}

// blocks start and end on their own line.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Dt: true, atom.Dd: true,
	atom.Tr: true, atom.Table: true, atom.Blockquote: true, atom.Pre: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Main: true, atom.Nav: true,
}

// page is the text content of an HTML document.
type page struct {
	title string
	body  string
}

// render walks the token stream once, collecting the <title> and the
// visible body text with block elements on separate lines.
func render(content string) page {
	z := html.NewTokenizer(strings.NewReader(content))

	var (
		title, body strings.Builder
		skip        int
		inTitle     bool
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return page{title: strings.TrimSpace(title.String()), body: tidy(body.String())}

		case html.TextToken:
			switch {
			case inTitle:
				title.Write(z.Text())
			case skip == 0:
				body.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Title {
				inTitle = tt == html.StartTagToken
				continue
			}
			if skipped[a] && tt != html.SelfClosingTagToken {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 {
				continue
			}
			switch {
			case blocks[a]:
				body.WriteByte('\n')
			case (a == atom.Td || a == atom.Th) && tt == html.EndTagToken:
				body.WriteByte(' ')
			}
		}
	}
}

// tidy collapses runs of spaces and drops blank lines.
func tidy(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// htmlTitle returns the <title> text or falls back to the filename.
func htmlTitle(content, filename string) string {
	if title := render(content).title; title != "" {
		return title
	}
	return plaintext.TitleFromFilename(filename)
}

// stripHTML returns the readable text of content.
func stripHTML(content string) string {
	return render(content).body
}
