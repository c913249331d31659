package postprocessors

import (
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/postprocessors/chunker"
	"github.com/custodia-labs/kb/internal/postprocessors/permission"
)

// Built-in stage names.
const (
	StageChunker    = "chunker"
	StagePermission = "permission"
)

// RegisterDefaults adds the chunker and permission stages.
func RegisterDefaults(r *Registry) {
	_ = r.Register(StageChunker, newChunker)
	_ = r.Register(StagePermission, func(Params) (driven.PostProcessor, error) {
		return permission.New(), nil
	})
}

// newChunker reads chunk_size, overlap and boundary_tolerance. Missing keys
// keep the chunker defaults; an explicit zero overlap is honoured and one
// at or above the chunk size is rejected.
func newChunker(p Params) (driven.PostProcessor, error) {
	var opts []chunker.Option
	if size, ok := p.Int("chunk_size"); ok && size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := p.Int("overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	if tol, ok := p.Float("boundary_tolerance"); ok {
		opts = append(opts, chunker.WithBoundaryTolerance(tol))
	}
	c, err := chunker.Build(opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}
