package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
	"github.com/custodia-labs/kb/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// Ingestion defaults.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 100
	DefaultMaxFileSize = 100 << 20
	DefaultStaleAfter  = 15 * time.Minute

	waitPollInterval = 50 * time.Millisecond
)

// ErrIngestionStopped is returned when enqueueing after Stop.
var ErrIngestionStopped = errors.New("ingestion stopped")

// IngestionService moves uploaded documents through parse, chunk, embed
// and index on a pool of workers.
//
// A worker claims a document by moving it from pending to processing in
// the DocumentStore, so two processes sharing a store never ingest the
// same document at once. Within a process each document is also handled
// under its own lock. A failure at any stage
// removes whatever was written for the document and marks it failed;
// status bookkeeping is not cancellable so an interrupted job never
// leaves a document in processing or ready.
type IngestionService struct {
	docStore    driven.DocumentStore
	index       driven.VectorIndex
	registry    driven.NormaliserRegistry
	pipeline    driven.PostProcessorPipeline
	embedder    *EmbeddingClient
	workers     int
	maxFileSize int64
	staleAfter  time.Duration

	locks *keyedMutex
	jobs  chan string

	// stateMu guards closed and the jobs channel lifecycle.
	stateMu sync.RWMutex
	closed  bool
	started bool
	stop    context.CancelFunc
	wg      sync.WaitGroup

	runMu   sync.Mutex
	running map[string]context.CancelFunc

	queued    atomic.Int64
	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// IngestionOption configures an IngestionService.
type IngestionOption func(*ingestionConfig)

type ingestionConfig struct {
	workers     int
	queueSize   int
	maxFileSize int64
	staleAfter  time.Duration
}

// WithWorkers sets the worker count.
func WithWorkers(n int) IngestionOption {
	return func(c *ingestionConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the job buffer size.
func WithQueueSize(n int) IngestionOption {
	return func(c *ingestionConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithMaxFileSize sets the largest accepted upload in bytes.
func WithMaxFileSize(n int64) IngestionOption {
	return func(c *ingestionConfig) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// WithStaleAfter sets how long a document may sit in processing before
// Resume treats its worker as dead and queues it again.
func WithStaleAfter(d time.Duration) IngestionOption {
	return func(c *ingestionConfig) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// NewIngestionService creates an ingestion service. Call Start to run workers.
func NewIngestionService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	registry driven.NormaliserRegistry,
	pipeline driven.PostProcessorPipeline,
	embedder *EmbeddingClient,
	opts ...IngestionOption,
) *IngestionService {
	cfg := ingestionConfig{
		workers:     DefaultWorkers,
		queueSize:   DefaultQueueSize,
		maxFileSize: DefaultMaxFileSize,
		staleAfter:  DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &IngestionService{
		docStore:    docStore,
		index:       index,
		registry:    registry,
		pipeline:    pipeline,
		embedder:    embedder,
		workers:     cfg.workers,
		maxFileSize: cfg.maxFileSize,
		staleAfter:  cfg.staleAfter,
		locks:       newKeyedMutex(),
		jobs:        make(chan string, cfg.queueSize),
		running:     make(map[string]context.CancelFunc),
	}
}

// Start launches the workers. Jobs run under a context derived from ctx.
func (s *IngestionService) Start(ctx context.Context) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, s.stop = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	logger.Info("Ingestion started with %d workers", s.workers)
}

// Stop stops accepting jobs, lets workers drain the queue and waits for them.
func (s *IngestionService) Stop() {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	started := s.started
	s.stateMu.Unlock()

	if started {
		s.wg.Wait()
		s.stop()
	}
}

func (s *IngestionService) worker(ctx context.Context) {
	defer s.wg.Done()
	for id := range s.jobs {
		s.queued.Add(-1)
		if err := s.Process(ctx, id); err != nil {
			logger.Warn("Ingestion of %s failed: %v", id, err)
		}
	}
}

// Upload stores a pending document and queues it.
func (s *IngestionService) Upload(ctx context.Context, req driving.UploadRequest) (*domain.Document, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	if int64(len(req.Content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", domain.ErrInvalidInput, len(req.Content), s.maxFileSize)
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = domain.SourceTypeFromFilename(req.Filename)
	}
	if !sourceType.IsValid() {
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrParse, domain.ErrUnsupportedType, req.Filename)
	}

	permission := req.Permission
	if permission == "" {
		permission = domain.PermissionPrivate
	}

	now := time.Now()
	doc := &domain.Document{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Filename:   req.Filename,
		SourceType: sourceType,
		Size:       int64(len(req.Content)),
		Permission: permission,
		Status:     domain.StatusPending,
		Raw:        req.Content,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	logger.Info("Uploaded %s as %s (%s, %d bytes)", req.Filename, doc.ID, sourceType, doc.Size)

	if err := s.enqueue(ctx, doc.ID); err != nil {
		_ = s.docStore.UpdateStatus(context.WithoutCancel(ctx), doc.ID, domain.StatusFailed, err.Error())
		return nil, err
	}

	out := *doc
	out.Raw = nil
	return &out, nil
}

// Retry re-queues a failed or ready document.
func (s *IngestionService) Retry(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrDocumentBusy, documentID, doc.Status)
	}

	if err := s.docStore.UpdateStatus(ctx, documentID, domain.StatusPending, ""); err != nil {
		return nil, fmt.Errorf("reset status: %w", err)
	}
	if err := s.enqueue(ctx, documentID); err != nil {
		_ = s.docStore.UpdateStatus(context.WithoutCancel(ctx), documentID, domain.StatusFailed, err.Error())
		return nil, err
	}

	doc.Status = domain.StatusPending
	doc.Error = ""
	doc.Raw = nil
	return doc, nil
}

// Resume queues pending documents left by an earlier run. Documents
// stuck in processing for longer than the stale timeout are moved back to
// pending first; younger ones may belong to a live worker elsewhere and
// are left alone. It returns the number of documents queued.
func (s *IngestionService) Resume(ctx context.Context) (int, error) {
	stuck, err := s.docStore.ListDocuments(ctx, domain.DocumentFilter{Status: domain.StatusProcessing})
	if err != nil {
		return 0, fmt.Errorf("list processing documents: %w", err)
	}
	cutoff := time.Now().Add(-s.staleAfter)
	for i := range stuck {
		if stuck[i].UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := s.docStore.TransitionStatus(ctx, stuck[i].ID, domain.StatusProcessing, domain.StatusPending); err != nil &&
			!errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("reset %s: %w", stuck[i].ID, err)
		}
	}

	pending, err := s.docStore.ListDocuments(ctx, domain.DocumentFilter{Status: domain.StatusPending})
	if err != nil {
		return 0, fmt.Errorf("list pending documents: %w", err)
	}
	queued := 0
	for i := range pending {
		if err := s.enqueue(ctx, pending[i].ID); err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		logger.Info("Resumed %d interrupted documents", queued)
	}
	return queued, nil
}

func (s *IngestionService) enqueue(ctx context.Context, documentID string) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.closed {
		return ErrIngestionStopped
	}

	s.queued.Add(1)
	select {
	case s.jobs <- documentID:
		return nil
	case <-ctx.Done():
		s.queued.Add(-1)
		return fmt.Errorf("enqueue %s: %w", documentID, ctx.Err())
	}
}

// Wait blocks until the document is ready or failed.
func (s *IngestionService) Wait(ctx context.Context, documentID string) (*domain.Document, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		doc, err := s.docStore.GetDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if doc.Status.IsTerminal() {
			doc.Raw = nil
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel interrupts an in-flight job. It reports whether one was running.
func (s *IngestionService) Cancel(documentID string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	cancel, ok := s.running[documentID]
	if ok {
		cancel()
	}
	return ok
}

// Stats reports pool counters.
func (s *IngestionService) Stats() driving.IngestionStats {
	return driving.IngestionStats{
		Workers:   s.workers,
		Queued:    s.queued.Load(),
		InFlight:  s.inFlight.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
	}
}

// lockDocument serialises work on one document.
func (s *IngestionService) lockDocument(documentID string) func() {
	return s.locks.Lock(documentID)
}

// Process runs the ingestion pipeline for one document:
// claim, parse, chunk, embed, replace prior chunks, save, index, ready.
// A document that is not pending has been claimed already, or finished,
// and is skipped.
func (s *IngestionService) Process(ctx context.Context, documentID string) error {
	unlock := s.lockDocument(documentID)
	defer unlock()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setRunning(documentID, cancel)
	defer s.clearRunning(documentID)

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	bookCtx := context.WithoutCancel(ctx)

	claimed, err := s.docStore.TransitionStatus(bookCtx, documentID, domain.StatusPending, domain.StatusProcessing)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("Document %s deleted before processing", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		logger.Debug("Document %s is not pending, skipping", documentID)
		return nil
	}

	doc, err := s.docStore.GetDocument(bookCtx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get document: %w", err)
	}

	logger.Section("Ingest " + documentID)

	normalised, chunkCount, err := s.ingest(jobCtx, doc)
	if err == nil {
		err = jobCtx.Err()
	}
	if err != nil {
		s.rollback(bookCtx, documentID)
		if uerr := s.docStore.UpdateStatus(bookCtx, documentID, domain.StatusFailed, err.Error()); uerr != nil {
			logger.Error("Mark %s failed: %v", documentID, uerr)
		}
		s.failed.Add(1)
		return err
	}

	now := time.Now()
	doc.Title = normalised.Title
	doc.Content = normalised.Content
	doc.ChunkCount = chunkCount
	doc.Status = domain.StatusReady
	doc.Error = ""
	doc.IndexedAt = &now
	doc.UpdatedAt = now
	if err := s.docStore.SaveDocument(bookCtx, doc); err != nil {
		s.rollback(bookCtx, documentID)
		_ = s.docStore.UpdateStatus(bookCtx, documentID, domain.StatusFailed, err.Error())
		s.failed.Add(1)
		return fmt.Errorf("mark ready: %w", err)
	}

	s.processed.Add(1)
	logger.Info("Indexed %s: %d chunks", documentID, chunkCount)
	return nil
}

// ingest parses, chunks, embeds and indexes doc. It returns the
// normalised document and the number of chunks written.
func (s *IngestionService) ingest(ctx context.Context, doc *domain.Document) (*domain.Document, int, error) {
	metadata := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	if doc.Title != "" {
		metadata["title"] = doc.Title
	}

	result, err := s.registry.Normalise(ctx, &domain.RawDocument{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		MIMEType:   doc.SourceType.MIMEType(),
		Content:    doc.Raw,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("parse: %w", err)
	}

	normalised := result.Document
	normalised.ID = doc.ID
	normalised.Filename = doc.Filename
	normalised.SourceType = doc.SourceType
	normalised.Permission = doc.Permission
	if doc.Title != "" {
		normalised.Title = doc.Title
	}

	chunks, err := s.pipeline.Process(ctx, &normalised)
	if err != nil {
		return nil, 0, fmt.Errorf("chunk: %w", err)
	}
	logger.Debug("Chunked %s into %d chunks", doc.ID, len(chunks))

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	// Replace any chunks from a previous run.
	if _, err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, 0, fmt.Errorf("clear index: %w", err)
	}
	if err := s.docStore.DeleteChunks(ctx, doc.ID); err != nil {
		return nil, 0, fmt.Errorf("clear chunks: %w", err)
	}

	entries := make([]driven.VectorEntry, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		entries[i] = driven.VectorEntry{
			ChunkID:    chunks[i].ID,
			DocumentID: doc.ID,
			Position:   chunks[i].Position,
			Permission: chunks[i].Permission,
			Embedding:  vectors[i],
		}
	}

	if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
		return nil, 0, fmt.Errorf("save chunks: %w", err)
	}
	if len(entries) > 0 {
		if err := s.index.Upsert(ctx, entries...); err != nil {
			return nil, 0, fmt.Errorf("index: %w", err)
		}
	}

	return &normalised, len(chunks), nil
}

// rollback removes every chunk written for a document.
func (s *IngestionService) rollback(ctx context.Context, documentID string) {
	if _, err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		logger.Error("Rollback index for %s: %v", documentID, err)
	}
	if err := s.docStore.DeleteChunks(ctx, documentID); err != nil {
		logger.Error("Rollback chunks for %s: %v", documentID, err)
	}
}

func (s *IngestionService) setRunning(documentID string, cancel context.CancelFunc) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.running[documentID] = cancel
}

func (s *IngestionService) clearRunning(documentID string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	delete(s.running, documentID)
}
