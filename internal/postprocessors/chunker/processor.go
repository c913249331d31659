// Package chunker splits normalised document text into overlapping passages.
package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// DefaultChunkSize is the default window size in runes.
const DefaultChunkSize = 512

// DefaultChunkOverlap is the default number of overlapping runes.
const DefaultChunkOverlap = 100

// DefaultBoundaryTolerance is the fraction of the window searched
// backwards from the hard cut for a paragraph, sentence or word break.
const DefaultBoundaryTolerance = 0.2

// Span is a half-open rune range of the normalised text.
type Span struct {
	Start int
	End   int
}

// Processor splits document content into overlapping chunks.
// It implements the PostProcessor interface.
//
// Consecutive chunks overlap by exactly the configured number of runes,
// so joining the first chunk with every later chunk minus its overlap
// prefix rebuilds the normalised text.
type Processor struct {
	chunkSize int
	overlap   int
	tolerance float64
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the window size in runes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in runes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithBoundaryTolerance sets the fraction of the window searched for a
// natural break. Zero disables boundary search and always hard-cuts.
func WithBoundaryTolerance(ratio float64) Option {
	return func(p *Processor) {
		if ratio >= 0 && ratio < 1 {
			p.tolerance = ratio
		}
	}
}

// New creates a new chunker processor with the given options. An overlap
// that is not below the window falls back to a quarter of the window;
// Build rejects it instead.
func New(opts ...Option) *Processor {
	p := configure(opts)

	// Overlap must stay below the window or chunking cannot advance
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Build creates a chunker processor and fails with domain.ErrInvalidInput
// when the overlap is not below the window.
func Build(opts ...Option) (*Processor, error) {
	p := configure(opts)
	if p.overlap >= p.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be below chunk size %d",
			domain.ErrInvalidInput, p.overlap, p.chunkSize)
	}
	return p, nil
}

func configure(opts []Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		tolerance: DefaultBoundaryTolerance,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the window size in runes.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the overlap in runes.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
// doc.Content is replaced by its normalised form so chunk offsets index into it.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	doc.Content = NormaliseWhitespace(doc.Content)
	if doc.Content == "" {
		return nil, nil
	}

	runes := []rune(doc.Content)
	spans := p.Split(runes)
	chunks := make([]domain.Chunk, 0, len(spans))

	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Content:    string(runes[span.Start:span.End]),
			Position:   i,
			Start:      span.Start,
			End:        span.End,
			Metadata:   make(map[string]any),
		})
	}

	return chunks, nil
}

// Split computes chunk spans over already normalised text.
// The result is deterministic for a given input and configuration.
func (p *Processor) Split(runes []rune) []Span {
	n := len(runes)
	if n == 0 {
		return nil
	}

	spans := make([]Span, 0, n/(p.chunkSize-p.overlap)+1)
	start := 0
	for {
		if n-start <= p.chunkSize {
			spans = append(spans, Span{Start: start, End: n})
			return spans
		}
		end := p.cut(runes, start)
		spans = append(spans, Span{Start: start, End: end})
		start = end - p.overlap
	}
}

// cut picks the end of the window starting at start. It prefers a
// paragraph break, then a sentence end, then a space, searching back
// from the hard limit. The cut always lies beyond start+overlap so the
// next window starts strictly later.
func (p *Processor) cut(runes []rune, start int) int {
	hard := start + p.chunkSize
	low := hard - int(p.tolerance*float64(p.chunkSize))
	if minCut := start + p.overlap + 1; low < minCut {
		low = minCut
	}

	for _, isBoundary := range []func([]rune, int) bool{paragraphEnd, sentenceEnd, wordEnd} {
		for c := hard; c >= low; c-- {
			if isBoundary(runes, c) {
				return c
			}
		}
	}
	return hard
}

// paragraphEnd reports a cut right after a blank line.
func paragraphEnd(r []rune, c int) bool {
	return c >= 2 && r[c-1] == '\n' && r[c-2] == '\n'
}

// sentenceEnd reports a cut right after terminal punctuation followed by whitespace.
func sentenceEnd(r []rune, c int) bool {
	if c < 1 || c >= len(r) {
		return false
	}
	switch r[c-1] {
	case '.', '!', '?':
		return unicode.IsSpace(r[c])
	}
	return false
}

// wordEnd reports a cut right after whitespace.
func wordEnd(r []rune, c int) bool {
	return c >= 1 && unicode.IsSpace(r[c-1])
}

var (
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
	spaceAroundNL   = regexp.MustCompile(` ?\n ?`)
)

// NormaliseWhitespace applies the whitespace rules used before splitting:
// CRLF becomes LF, runs of horizontal whitespace collapse to one space,
// three or more newlines collapse to a paragraph break, and the result is trimmed.
func NormaliseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = spaceAroundNL.ReplaceAllString(s, "\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
