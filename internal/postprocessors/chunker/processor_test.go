package chunker

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/custodia-labs/kb/internal/core/domain"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected chunkSize %d, got %d", DefaultChunkSize, p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected overlap %d, got %d", DefaultChunkOverlap, p.overlap)
		}
		if p.tolerance != DefaultBoundaryTolerance {
			t.Errorf("expected tolerance %v, got %v", DefaultBoundaryTolerance, p.tolerance)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		p := New(WithChunkSize(500), WithOverlap(50), WithBoundaryTolerance(0.1))
		if p.ChunkSize() != 500 || p.Overlap() != 50 || p.tolerance != 0.1 {
			t.Errorf("unexpected config: size=%d overlap=%d tolerance=%v", p.chunkSize, p.overlap, p.tolerance)
		}
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		p := New(WithChunkSize(100), WithOverlap(150))
		if p.overlap >= p.chunkSize {
			t.Error("overlap should be reduced when it exceeds chunk size")
		}
	})

	t.Run("build rejects overlap at chunk size", func(t *testing.T) {
		if _, err := Build(WithChunkSize(100), WithOverlap(100)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		p, err := Build(WithChunkSize(100), WithOverlap(99))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Overlap() != 99 {
			t.Errorf("expected overlap 99, got %d", p.Overlap())
		}
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		p := New(WithChunkSize(0), WithOverlap(-1), WithBoundaryTolerance(1.5))
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected default chunkSize, got %d", p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected default overlap, got %d", p.overlap)
		}
		if p.tolerance != DefaultBoundaryTolerance {
			t.Errorf("expected default tolerance, got %v", p.tolerance)
		}
	})
}

func TestProcessor_Name(t *testing.T) {
	p := New()
	if p.Name() != "chunker" {
		t.Errorf("expected name 'chunker', got '%s'", p.Name())
	}
}

func TestProcessor_Process_EmptyContent(t *testing.T) {
	p := New()
	for _, content := range []string{"", "   \n\n\t  "} {
		doc := &domain.Document{ID: "test-doc", Content: content}

		chunks, err := p.Process(context.Background(), doc, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected 0 chunks for %q, got %d", content, len(chunks))
		}
	}
}

func TestProcessor_Process_SmallContent(t *testing.T) {
	p := New(WithChunkSize(100), WithOverlap(20))
	doc := &domain.Document{
		ID:      "test-doc",
		Content: "This is a small piece of content.",
	}

	chunks, err := p.Process(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for small content, got %d", len(chunks))
	}
	if chunks[0].DocumentID != doc.ID {
		t.Errorf("expected DocumentID '%s', got '%s'", doc.ID, chunks[0].DocumentID)
	}
	if chunks[0].Content != doc.Content {
		t.Errorf("expected content to match document content")
	}
	if chunks[0].Position != 0 || chunks[0].Start != 0 || chunks[0].End != len(doc.Content) {
		t.Errorf("unexpected span: pos=%d start=%d end=%d", chunks[0].Position, chunks[0].Start, chunks[0].End)
	}
	if chunks[0].Metadata == nil {
		t.Error("expected chunk Metadata to be initialized")
	}
}

// TestProcessor_Process_CatAndDog checks the two-sentence scenario with W=20, O=5.
func TestProcessor_Process_CatAndDog(t *testing.T) {
	p := New(WithChunkSize(20), WithOverlap(5))
	doc := &domain.Document{ID: "d", Content: "The cat sat. The dog ran."}

	chunks, err := p.Process(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), contents(chunks))
	}
	if chunks[0].Content != "The cat sat. The " {
		t.Errorf("unexpected first chunk %q", chunks[0].Content)
	}
	if chunks[1].Content != " The dog ran." {
		t.Errorf("unexpected second chunk %q", chunks[1].Content)
	}
	first := []rune(chunks[0].Content)
	tail := string(first[len(first)-5:])
	if !strings.HasPrefix(chunks[1].Content, tail) {
		t.Errorf("second chunk %q should begin with %q", chunks[1].Content, tail)
	}
}

func TestProcessor_Process_PrefersParagraphBreak(t *testing.T) {
	p := New(WithChunkSize(40), WithOverlap(4), WithBoundaryTolerance(0.5))
	doc := &domain.Document{
		ID:      "d",
		Content: "Alpha beta gamma delta.\n\nEpsilon zeta eta theta iota kappa lambda.",
	}

	chunks, err := p.Process(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(chunks[0].Content, "\n\n") {
		t.Errorf("expected first chunk to end at the paragraph break, got %q", chunks[0].Content)
	}
}

func TestProcessor_Process_HardCutWithoutBoundary(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(3))
	doc := &domain.Document{ID: "d", Content: "0123456789ABCDEFGHIJ"}

	chunks, err := p.Process(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Without any whitespace every window is cut at the hard limit:
	// 0-10, 7-17, 14-20
	want := []string{"0123456789", "789ABCDEFG", "EFGHIJ"}
	if got := contents(chunks); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestProcessor_Process_IgnoresInputChunks(t *testing.T) {
	p := New(WithChunkSize(100))

	existingChunks := []domain.Chunk{
		{ID: "existing", Content: "should be ignored"},
	}
	doc := &domain.Document{ID: "test-doc", Content: "New content to chunk"}

	chunks, err := p.Process(context.Background(), doc, existingChunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, chunk := range chunks {
		if chunk.ID == "existing" {
			t.Error("existing chunks should be ignored")
		}
	}
}

func TestProcessor_Process_Cancelled(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, &domain.Document{ID: "d", Content: strings.Repeat("word ", 50)}, nil)
	if err == nil {
		t.Error("expected cancellation error")
	}
}

func TestProcessor_Process_NormalisesContent(t *testing.T) {
	p := New(WithChunkSize(100), WithOverlap(10))
	doc := &domain.Document{ID: "d", Content: "  Line one\r\n\r\n\r\n\r\nLine\t\t two  "}

	if _, err := p.Process(context.Background(), doc, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Content != "Line one\n\nLine two" {
		t.Errorf("unexpected normalised content %q", doc.Content)
	}
}

func TestNormaliseWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a  b\t\tc", "a b c"},
		{"a \n b", "a\nb"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"a \n \n \n b", "a\n\nb"},
		{"  padded  ", "padded"},
	}

	for _, tt := range tests {
		got := NormaliseWhitespace(tt.in)
		if got != tt.want {
			t.Errorf("NormaliseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := NormaliseWhitespace(got); again != got {
			t.Errorf("NormaliseWhitespace is not idempotent for %q: %q", tt.in, again)
		}
	}
}

// TestProcessor_Reconstruction checks that chunking is lossless and
// deterministic for random text and random valid (W, O).
func TestProcessor_Reconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"alpha", "beta", "γάμμα", "delta.", "epsilon!", "zeta?", "\n\n", "eta", "theta,", "日本語"}

	for iter := 0; iter < 200; iter++ {
		var b strings.Builder
		for i := rng.Intn(200); i > 0; i-- {
			b.WriteString(words[rng.Intn(len(words))])
			b.WriteString(" ")
		}
		size := 2 + rng.Intn(60)
		overlap := rng.Intn(size)
		p := New(WithChunkSize(size), WithOverlap(overlap), WithBoundaryTolerance(rng.Float64()*0.5))

		doc := &domain.Document{ID: "d", Content: b.String()}
		chunks, err := p.Process(context.Background(), doc, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		normalised := doc.Content
		if normalised == "" {
			if len(chunks) != 0 {
				t.Fatalf("expected no chunks for empty text")
			}
			continue
		}

		var rebuilt strings.Builder
		for i, c := range chunks {
			r := []rune(c.Content)
			if len(r) == 0 {
				t.Fatalf("chunk %d is empty", i)
			}
			if len(r) > size {
				t.Fatalf("chunk %d has %d runes, window is %d", i, len(r), size)
			}
			if i == 0 {
				rebuilt.WriteString(c.Content)
				continue
			}
			prev := []rune(chunks[i-1].Content)
			if string(prev[len(prev)-overlap:]) != string(r[:overlap]) {
				t.Fatalf("chunks %d and %d do not overlap by %d runes", i-1, i, overlap)
			}
			rebuilt.WriteString(string(r[overlap:]))
		}
		if rebuilt.String() != normalised {
			t.Fatalf("reconstruction mismatch (W=%d O=%d)\n got: %q\nwant: %q", size, overlap, rebuilt.String(), normalised)
		}

		again, _ := p.Process(context.Background(), &domain.Document{ID: "d", Content: normalised}, nil)
		if strings.Join(contents(again), "|") != strings.Join(contents(chunks), "|") {
			t.Fatalf("chunking is not deterministic (W=%d O=%d)", size, overlap)
		}
	}
}

func contents(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
