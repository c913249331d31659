package postprocessors

import (
	"fmt"
	"slices"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Params is the per-stage configuration decoded from settings. Numbers
// may arrive as int, int64 or float64 depending on the decoder.
type Params map[string]any

// Int returns the integer under key and whether a number was present.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Float returns the float under key and whether a number was present.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Factory builds a stage from its parameters.
type Factory func(Params) (driven.PostProcessor, error)

// Registry resolves stage names from settings to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry returns a registry holding the built-in stages.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("%w: stage %q registered twice", domain.ErrInvalidInput, name)
	}
	r.factories[name] = f
	return nil
}

// Build constructs the named stage.
func (r *Registry) Build(name string, params Params) (driven.PostProcessor, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", domain.ErrUnsupportedType, name)
	}
	return f(params)
}

// Available lists the registered stage names, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
