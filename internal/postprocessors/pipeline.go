// Package postprocessors turns a normalised document into indexable chunks
// by running it through an ordered list of stages.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/logger"
)

var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs stages in order. The first stage creates chunks from the
// document text; later stages rewrite them.
type Pipeline struct {
	stages []driven.PostProcessor
}

// NewPipeline creates a pipeline over stages.
func NewPipeline(stages ...driven.PostProcessor) *Pipeline {
	return &Pipeline{stages: stages}
}

// BuildPipeline resolves every stage named in cfg.
func BuildPipeline(r *Registry, cfg domain.PipelineConfig) (*Pipeline, error) {
	if len(cfg.Processors) == 0 {
		return nil, fmt.Errorf("%w: pipeline has no stages", domain.ErrInvalidInput)
	}

	stages := make([]driven.PostProcessor, 0, len(cfg.Processors))
	for _, name := range cfg.Processors {
		stage, err := r.Build(name, Params(cfg.GetProcessorConfig(name)))
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return NewPipeline(stages...), nil
}

// Process chunks doc. The result is checked before it is returned: every
// chunk belongs to doc and positions run 0..n-1.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := stage.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		logger.Debug("Stage %s on %s: %d -> %d chunks", stage.Name(), doc.ID, len(chunks), len(out))
		chunks = out
	}

	if err := verify(doc.ID, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func verify(docID string, chunks []domain.Chunk) error {
	for i, c := range chunks {
		if c.DocumentID != docID {
			return fmt.Errorf("%w: chunk %d belongs to %q, not %q", domain.ErrInvalidInput, i, c.DocumentID, docID)
		}
		if c.Position != i {
			return fmt.Errorf("%w: chunk %d has position %d", domain.ErrInvalidInput, i, c.Position)
		}
	}
	return nil
}

// Add appends a stage.
func (p *Pipeline) Add(stage driven.PostProcessor) {
	p.stages = append(p.stages, stage)
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
