// Package html extracts visible text from HTML uploads. Script and style
// bodies are dropped, block elements become line breaks and entities are
// decoded.
package html

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts an HTML document to plain text.
// Block elements become paragraph breaks; scripts, styles and the head are dropped.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(raw.Content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrParse, raw.Filename)
	}

	rawContent := string(raw.Content)

	doc := raw.NewDocument("html", stripHTML(rawContent))
	doc.Title = raw.Title(extractHTMLTitle(rawContent))
	if lang := langAttr.FindStringSubmatch(rawContent); len(lang) > 1 {
		doc.Metadata["language"] = lang[1]
	}

	return &driven.NormaliseResult{Document: doc}, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	langAttr      = regexp.MustCompile(`(?i)<html[^>]*\blang="([^"]+)"`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTags     = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|ul|ol|tr|table|blockquote|pre|section|article|header|footer|nav|aside|main|figure)\b[^>]*>`)
	lineTags      = regexp.MustCompile(`(?i)<(br|hr)\s*/?>|</(td|th)>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)

	// Elements whose content is never readable text.
	droppedBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`),
		regexp.MustCompile(`(?is)<head\b[^>]*>.*?</head>`),
		regexp.MustCompile(`(?is)<svg\b[^>]*>.*?</svg>`),
		regexp.MustCompile(`(?is)<template\b[^>]*>.*?</template>`),
	}
)

// extractHTMLTitle returns the collapsed <title> text, or "" without one.
func extractHTMLTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) < 2 {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(matches[1])), " ")
}

// stripHTML removes HTML markup and returns readable text.
// Each block element starts a new paragraph separated by a blank line.
func stripHTML(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	for _, re := range droppedBlocks {
		content = re.ReplaceAllString(content, "")
	}
	content = htmlComments.ReplaceAllString(content, "")

	// Source newlines are layout, not structure
	content = strings.ReplaceAll(content, "\n", " ")

	content = blockTags.ReplaceAllString(content, "\n\n")
	content = lineTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	var out []string
	blank := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
