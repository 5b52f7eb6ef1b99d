package postprocessors

import (
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/cleaner"
)

// Built-in stage names.
const (
	StageCleaner = "cleaner"
	StageChunker = "chunker"
)

// RegisterDefaults registers the built-in stages.
func RegisterDefaults(r *Registry) {
	r.Register(StageCleaner, newCleaner)
	r.Register(StageChunker, newChunker)
}

// NewDefaultPipeline builds the cleaner and chunker stages for settings.
func NewDefaultPipeline(settings domain.ChunkingSettings) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)

	return r.Build(
		StageSpec{Name: StageCleaner},
		StageSpec{Name: StageChunker, Options: map[string]any{
			"window":   settings.Window,
			"overlap":  settings.Overlap,
			"lookback": settings.Lookback,
		}},
	)
}

// newCleaner accepts:
//   - max_blank_lines (int): consecutive empty lines kept (default: 1)
func newCleaner(opts map[string]any) (driven.PostProcessor, error) {
	var o []cleaner.Option
	if n, ok := intOption(opts, "max_blank_lines"); ok {
		o = append(o, cleaner.WithMaxBlankLines(n))
	}
	return cleaner.New(o...), nil
}

// newChunker accepts window, overlap and lookback in runes. Unset or
// non-positive window and lookback keep the chunker defaults.
func newChunker(opts map[string]any) (driven.PostProcessor, error) {
	var o []chunker.Option
	if n, ok := intOption(opts, "window"); ok && n > 0 {
		o = append(o, chunker.WithChunkSize(n))
	}
	if n, ok := intOption(opts, "overlap"); ok {
		o = append(o, chunker.WithOverlap(n))
	}
	if n, ok := intOption(opts, "lookback"); ok && n > 0 {
		o = append(o, chunker.WithLookback(n))
	}
	return chunker.New(o...), nil
}
