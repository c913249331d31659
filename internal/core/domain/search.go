package domain

// UngroundedCaveat prefixes answers produced without any retrieved context.
const UngroundedCaveat = "Note: no relevant documents were found in the knowledge base, " +
	"so this answer is not grounded in any source."

// RetrieveOptions configures a retrieval.
type RetrieveOptions struct {
	// Scope is the set of permission levels the caller may read.
	Scope Scope

	// TopK is the maximum number of sources returned.
	TopK int

	// ScoreThreshold drops candidates whose similarity is below it.
	ScoreThreshold float64

	// UseRerank re-scores candidates with the reranker.
	UseRerank bool

	// DocumentIDs optionally restricts retrieval to specific documents.
	DocumentIDs []string
}

// Source is a read-only projection of a retrieved chunk.
// It exists only inside results and the assistant message citing it.
type Source struct {
	// DocumentID is the owning document.
	DocumentID string `json:"document_id"`

	// ChunkID is the cited chunk.
	ChunkID string `json:"chunk_id"`

	// DocumentTitle is the owning document's title at retrieval time.
	DocumentTitle string `json:"document_title,omitempty"`

	// Position is the chunk's ordinal within the document.
	Position int `json:"position"`

	// Start and End are the chunk's rune span in the normalised text.
	Start int `json:"start"`
	End   int `json:"end"`

	// Content is the chunk text.
	Content string `json:"content,omitempty"`

	// Score is the cosine similarity to the query.
	Score float64 `json:"score"`

	// RerankScore is set when the reranker scored this source.
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// RankScore is the score results are ordered by.
func (s Source) RankScore() float64 {
	if s.RerankScore != nil {
		return *s.RerankScore
	}
	return s.Score
}

// Answer is the output of answer synthesis.
type Answer struct {
	// Text is the generated answer.
	Text string

	// HasContext is false when no sources backed the answer.
	HasContext bool

	// Sources are the passages that fit the prompt, in rank order.
	// Citations index into this slice.
	Sources []Source

	// Citations are 1-based indexes into Sources, in order of first use.
	Citations []int
}
