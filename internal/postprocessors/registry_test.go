package postprocessors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/postprocessors/chunker"
)

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", func(p Params) (driven.PostProcessor, error) {
		name, _ := p["name"].(string)
		return &stubStage{name: name}, nil
	}))

	stage, err := r.Build("echo", Params{"name": "custom"})

	require.NoError(t, err)
	assert.Equal(t, "custom", stage.Name())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	f := func(Params) (driven.PostProcessor, error) { return &stubStage{}, nil }

	require.NoError(t, r.Register("x", f))
	assert.ErrorIs(t, r.Register("x", f), domain.ErrInvalidInput)
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := NewRegistry().Build("missing", nil)

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestRegistry_Available(t *testing.T) {
	assert.Empty(t, NewRegistry().Available())
	assert.Equal(t, []string{StageChunker, StagePermission}, NewDefaultRegistry().Available())
}

func TestChunkerFactory(t *testing.T) {
	tests := []struct {
		name        string
		params      Params
		wantSize    int
		wantOverlap int
	}{
		{"decoded from toml", Params{"chunk_size": int64(500), "overlap": int64(50)}, 500, 50},
		{"decoded from json", Params{"chunk_size": float64(300), "overlap": float64(0)}, 300, 0},
		{"defaults", nil, chunker.New().ChunkSize(), chunker.New().Overlap()},
		{"non-positive size ignored", Params{"chunk_size": 0}, chunker.New().ChunkSize(), chunker.New().Overlap()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := NewDefaultRegistry().Build(StageChunker, tt.params)
			require.NoError(t, err)

			c, ok := stage.(*chunker.Processor)
			require.True(t, ok)
			assert.Equal(t, tt.wantSize, c.ChunkSize())
			assert.Equal(t, tt.wantOverlap, c.Overlap())
		})
	}
}

func TestChunkerFactory_RejectsOverlapAtOrAboveSize(t *testing.T) {
	tests := map[string]Params{
		"equal":        {"chunk_size": 100, "overlap": 100},
		"above":        {"chunk_size": 100, "overlap": 150},
		"default size": {"overlap": chunker.DefaultChunkSize},
	}

	for name, params := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewDefaultRegistry().Build(StageChunker, params)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestParams(t *testing.T) {
	p := Params{"i": 2, "i64": int64(3), "f": 0.25, "s": "x"}

	tests := []struct {
		key     string
		wantInt int
		wantF   float64
		ok      bool
	}{
		{"i", 2, 2, true},
		{"i64", 3, 3, true},
		{"f", 0, 0.25, true},
		{"s", 0, 0, false},
		{"missing", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			i, ok := p.Int(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantInt, i)

			f, ok := p.Float(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.wantF, f, 1e-9)
		})
	}
}
