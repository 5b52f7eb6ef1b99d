package postprocessors

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// StageFactory builds a stage from its options. Options come from config
// files, so numbers may arrive as int, int64 or float64.
type StageFactory func(opts map[string]any) (driven.PostProcessor, error)

// StageSpec names a stage and its options.
type StageSpec struct {
	Name    string
	Options map[string]any
}

// Registry maps stage names to factories.
type Registry struct {
	factories map[string]StageFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StageFactory)}
}

// Register adds a factory. A later registration under the same name wins.
func (r *Registry) Register(name string, f StageFactory) {
	r.factories[name] = f
}

// Names returns the registered stage names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates a pipeline with one stage per spec, in order.
func (r *Registry) Build(specs ...StageSpec) (*Pipeline, error) {
	stages := make([]driven.PostProcessor, 0, len(specs))
	for _, spec := range specs {
		f, ok := r.factories[spec.Name]
		if !ok {
			return nil, fmt.Errorf("%w: stage %q", domain.ErrUnsupportedType, spec.Name)
		}
		stage, err := f(spec.Options)
		if err != nil {
			return nil, fmt.Errorf("building stage %s: %w", spec.Name, err)
		}
		stages = append(stages, stage)
	}
	return NewPipeline(stages...), nil
}

// intOption reads a numeric option and reports whether it was set.
func intOption(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
