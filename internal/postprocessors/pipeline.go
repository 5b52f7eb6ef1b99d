// Package postprocessors turns an ingested document into indexable chunks.
// A pipeline is an ordered list of stages: text stages rewrite the document
// before the chunker splits it, and chunk stages see the chunker's output.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs its stages in order over one document.
type Pipeline struct {
	stages []driven.PostProcessor
}

// NewPipeline creates a pipeline from stages, in execution order.
func NewPipeline(stages ...driven.PostProcessor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Process runs doc through every stage and checks that the resulting
// chunks belong to doc and are numbered 0..n-1. Stage errors keep their
// domain kind.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
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
		chunks = out
	}

	for i := range chunks {
		if chunks[i].DocumentID != doc.ID || chunks[i].Index != i {
			return nil, fmt.Errorf("chunk %d (%s) is out of sequence for document %s",
				i, chunks[i].ID, doc.ID)
		}
	}
	return chunks, nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
