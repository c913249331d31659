package services

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/kb/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/normalisers"
	"github.com/custodia-labs/kb/internal/postprocessors"
	"github.com/custodia-labs/kb/internal/postprocessors/chunker"
	"github.com/custodia-labs/kb/internal/postprocessors/permission"
)

// --- Mock implementations ---

const testDims = 64

// bowEmbedder is a bag-of-words embedder: every distinct lowercase word
// gets its own dimension, so cosine similarity tracks shared words.
type bowEmbedder struct {
	mu      sync.Mutex
	vocab   map[string]int
	dims    int
	batches [][]string
	err     error

	// block, when set, is waited on before each batch returns.
	block chan struct{}
	// vectors, when set, replaces the computed result.
	vectors func(texts []string) [][]float32
}

func newBowEmbedder() *bowEmbedder {
	return &bowEmbedder{vocab: make(map[string]int), dims: testDims}
}

func (m *bowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *bowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	err := m.err
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if m.vectors != nil {
		return m.vectors(texts), nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *bowEmbedder) vector(text string) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec := make([]float32, m.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		idx, ok := m.vocab[w]
		if !ok {
			idx = len(m.vocab) % m.dims
			m.vocab[w] = idx
		}
		vec[idx]++
	}
	return vec
}

func (m *bowEmbedder) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *bowEmbedder) Dimensions() int              { return m.dims }
func (m *bowEmbedder) ModelName() string            { return "bag-of-words" }
func (m *bowEmbedder) Ping(_ context.Context) error { return nil }
func (m *bowEmbedder) Close() error                 { return nil }

// mockLLM implements driven.LLMService for testing.
type mockLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	messages [][]driven.ChatMessage
	// started is closed when Chat is entered, release unblocks it.
	started chan struct{}
	release chan struct{}
}

func (m *mockLLM) Chat(ctx context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.messages = append(m.messages, messages)
	started, release := m.started, m.release
	m.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func (m *mockLLM) lastMessages() []driven.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

func (m *mockLLM) ModelName() string            { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

// mockReranker scores passages with a caller-supplied function.
type mockReranker struct {
	score func(query, doc string) float64
	err   error
	short bool
	calls int
	seen  []string
}

func (m *mockReranker) Rerank(_ context.Context, query string, documents []string) ([]float64, error) {
	m.calls++
	m.seen = append([]string(nil), documents...)
	if m.err != nil {
		return nil, m.err
	}
	scores := make([]float64, len(documents))
	for i, d := range documents {
		scores[i] = m.score(query, d)
	}
	if m.short && len(scores) > 0 {
		scores = scores[:len(scores)-1]
	}
	return scores, nil
}

func (m *mockReranker) Name() string { return "mock" }

// flakyIndex wraps a memory index and injects failures.
type flakyIndex struct {
	*memory.VectorIndex
	searchErr error
	upsertErr error
	deleteErr error
	lastK     int
}

func (f *flakyIndex) Search(ctx context.Context, q []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	f.lastK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.VectorIndex.Search(ctx, q, k, filter)
}

func (f *flakyIndex) Upsert(ctx context.Context, entries ...driven.VectorEntry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorIndex.Upsert(ctx, entries...)
}

func (f *flakyIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.VectorIndex.DeleteByDocument(ctx, documentID)
}

// mockAIValidator implements driven.AIConfigValidator for testing.
type mockAIValidator struct {
	embeddingErr error
	llmErr       error
	embedding    *domain.EmbeddingSettings
	llm          *domain.LLMSettings
}

func (m *mockAIValidator) ValidateEmbedding(cfg *domain.EmbeddingSettings) error {
	m.embedding = cfg
	return m.embeddingErr
}

func (m *mockAIValidator) ValidateLLM(cfg *domain.LLMSettings) error {
	m.llm = cfg
	return m.llmErr
}

// --- Fixtures ---

// testKB wires the services over memory stores.
type testKB struct {
	docs      *memory.DocumentStore
	index     *flakyIndex
	convStore *memory.ConversationStore
	backend   *bowEmbedder
	embedder  *EmbeddingClient
	llm       *mockLLM
	ingestion *IngestionService
	documents *DocumentService
	retriever *Retriever
	query     *QueryService
}

type kbOptions struct {
	chunkSize   int
	overlap     int
	retrieverOp []RetrieverOption
	ingestOp    []IngestionOption
}

func newTestKB(opts kbOptions) *testKB {
	if opts.chunkSize == 0 {
		opts.chunkSize = 512
	}
	if opts.overlap == 0 {
		opts.overlap = 100
	}

	kb := &testKB{
		docs:      memory.NewDocumentStore(),
		index:     &flakyIndex{VectorIndex: memory.NewVectorIndex(testDims)},
		convStore: memory.NewConversationStore(),
		backend:   newBowEmbedder(),
		llm:       &mockLLM{response: "The cat sat on the mat [1]."},
	}
	kb.embedder = NewEmbeddingClient(kb.backend)

	pipeline := postprocessors.NewPipeline(
		chunker.New(chunker.WithChunkSize(opts.chunkSize), chunker.WithOverlap(opts.overlap)),
		permission.New(),
	)
	ingestOpts := append([]IngestionOption{WithWorkers(2)}, opts.ingestOp...)
	kb.ingestion = NewIngestionService(kb.docs, kb.index, normalisers.NewDefaultRegistry(), pipeline, kb.embedder, ingestOpts...)
	kb.documents = NewDocumentService(kb.docs, kb.index, kb.ingestion, kb.embedder)
	kb.retriever = NewRetriever(kb.embedder, kb.index, kb.docs, opts.retrieverOp...)
	kb.query = NewQueryService(
		kb.retriever,
		NewSynthesizer(kb.llm),
		NewConversationService(kb.convStore),
		domain.RetrievalSettings{TopK: 5, ScoreThreshold: 0.3},
	)
	return kb
}

func float64Ptr(f float64) *float64 {
	return &f
}
