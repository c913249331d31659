// Package markdown provides a Normaliser for Markdown documents with
// optional YAML front matter.
package markdown

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts a markdown document to plain text.
// Front matter keys become metadata; a "title" key wins over the first heading.
// Headings are kept as standalone paragraphs so the chunker can split on them.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(raw.Content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrParse, raw.Filename)
	}

	body, frontMatter, err := splitFrontMatter(string(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: front matter: %w", domain.ErrParse, err)
	}

	title, _ := frontMatter["title"].(string)
	if strings.TrimSpace(title) == "" {
		title = extractMarkdownTitle(body)
	}

	doc := raw.NewDocument("markdown", stripMarkdown(body))
	doc.Title = raw.Title(title)
	for k, v := range frontMatter {
		if _, set := doc.Metadata[k]; !set {
			doc.Metadata[k] = v
		}
	}
	return &driven.NormaliseResult{Document: doc}, nil
}

// splitFrontMatter separates a leading "---" YAML block from the body.
func splitFrontMatter(content string) (string, map[string]any, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return content, nil, nil
	}

	rest := content[strings.Index(content, "\n")+1:]
	end := frontMatterEnd.FindStringIndex(rest)
	if end == nil {
		// An opening rule without a closing one is an ordinary thematic break
		return content, nil, nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(rest[:end[0]]), &fm); err != nil {
		return "", nil, err
	}
	return rest[end[1]:], fm, nil
}

// extractMarkdownTitle returns the text of the first level-one ATX heading.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if heading, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(strings.TrimRight(heading, "# "))
		}
	}
	return ""
}

var (
	frontMatterEnd = regexp.MustCompile(`(?m)^(---|\.\.\.)[ \t]*$\n?`)
	codeFence      = regexp.MustCompile("(?m)^```[^\n]*\n((?s:.*?))^```[ \t]*$")
	inlineCode     = regexp.MustCompile("`([^`]+)`")
	images         = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links          = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings       = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.*?)[ \t]*#*[ \t]*$`)
	blockquote     = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	horizontalRule = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	listMarkers    = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
	numberedList   = regexp.MustCompile(`(?m)^([ \t]*)\d+[.)][ \t]+`)
	htmlTags       = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	multiNewlines  = regexp.MustCompile(`\n{3,}`)

	// Emphasis markers, strongest first. Underscores only count at word
	// edges so snake_case identifiers survive.
	emphasis = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`\*\*(\S(?:.*?\S)?)\*\*`), "$1"},
		{regexp.MustCompile(`~~(\S(?:.*?\S)?)~~`), "$1"},
		{regexp.MustCompile(`\*(\S(?:.*?\S)?)\*`), "$1"},
		{regexp.MustCompile(`(^|[^\w])__(\S(?:.*?\S)?)__([^\w]|$)`), "$1$2$3"},
		{regexp.MustCompile(`(^|[^\w])_(\S(?:.*?\S)?)_([^\w]|$)`), "$1$2$3"},
	}
)

// stripMarkdown removes markdown syntax while keeping the readable text.
// Code blocks keep their contents; headings become their own paragraphs.
func stripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = codeFence.ReplaceAllString(content, "$1")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = horizontalRule.ReplaceAllString(content, "")
	content = headings.ReplaceAllString(content, "\n$1\n")
	for _, e := range emphasis {
		content = e.re.ReplaceAllString(content, e.repl)
	}
	content = blockquote.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "$1")
	content = numberedList.ReplaceAllString(content, "$1")
	content = htmlTags.ReplaceAllString(content, "")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
