// Package chunker provides a boundary-aware text chunking processor.
package chunker

import (
	"context"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/identity"
)

// DefaultChunkSize is the default number of runes per chunk window.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping runes.
const DefaultChunkOverlap = 200

// Processor splits document text into overlapping chunks.
// It implements the PostProcessor interface.
//
// Sizes are measured in runes so that windows mean the same thing for
// Hangul and Latin text.
type Processor struct {
	chunkSize int
	overlap   int
	lookback  int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the window size in runes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in runes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithLookback sets how far back from the window edge a boundary is searched.
func WithLookback(lookback int) Option {
	return func(p *Processor) {
		if lookback > 0 {
			p.lookback = lookback
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}
	if p.lookback == 0 || p.lookback >= p.chunkSize {
		p.lookback = p.chunkSize / 5
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Span is a chunk boundary within the source text. Start and End are rune
// offsets; Text includes the overlap carried from the previous span.
type Span struct {
	Index int
	Start int
	End   int
	Text  string
}

// Split divides text into spans. Empty or whitespace-only text yields
// domain.ErrEmptyDocument.
func (p *Processor) Split(text string) ([]Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	runes := []rune(text)
	segments := p.segments(runes)
	spans := make([]Span, len(segments))

	for i, seg := range segments {
		start := seg[0]
		if i > 0 {
			start = max(seg[0]-p.overlap, spans[i-1].Start)
		}
		spans[i] = Span{
			Index: i,
			Start: start,
			End:   seg[1],
			Text:  string(runes[start:seg[1]]),
		}
	}

	return spans, nil
}

// Process splits the document text into chunks.
// Input chunks are ignored; this processor creates new chunks from document text.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	spans, err := p.Split(doc.Text)
	if err != nil {
		return nil, err
	}

	page := domain.PageOf(doc.Metadata)
	chunks := make([]domain.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = domain.Chunk{
			ID:         identity.ChunkID(doc.ID, s.Index),
			DocumentID: doc.ID,
			Index:      s.Index,
			Text:       s.Text,
			Start:      s.Start,
			End:        s.End,
			Source:     doc.Source,
			Page:       page,
		}
	}

	return chunks, nil
}

// segments partitions the text into [start, end) ranges without overlap.
func (p *Processor) segments(runes []rune) [][2]int {
	n := len(runes)
	minTail := p.chunkSize / 2
	segments := make([][2]int, 0, n/p.chunkSize+1)

	for start := 0; start < n; {
		end := n
		if n-start > p.chunkSize {
			end = p.cut(runes, start, start+p.chunkSize)
			// Fold a short remainder into this segment instead of emitting a fragment
			if n-end < minTail {
				end = n
			}
		}
		segments = append(segments, [2]int{start, end})
		start = end
	}

	return segments
}

// boundary kinds in order of preference.
const (
	paragraphBoundary = iota
	lineBoundary
	sentenceBoundary
)

// cut returns the latest boundary in [edge-lookback, edge], preferring
// paragraphs over lines over sentences. Without one it cuts at edge.
func (p *Processor) cut(runes []rune, start, edge int) int {
	lo := max(edge-p.lookback, start+1)
	for kind := paragraphBoundary; kind <= sentenceBoundary; kind++ {
		for c := edge; c >= lo; c-- {
			if isBoundary(runes, start, c, kind) {
				return c
			}
		}
	}
	return edge
}

// isBoundary reports whether a cut before runes[c] ends a unit of the given kind.
func isBoundary(runes []rune, start, c, kind int) bool {
	last := runes[c-1]
	switch kind {
	case paragraphBoundary:
		return last == '\n' && c-2 >= start && runes[c-2] == '\n'
	case lineBoundary:
		return last == '\n'
	default:
		if isFullWidthTerminator(last) {
			return true
		}
		return unicode.IsSpace(last) && c-2 >= start && isTerminator(runes[c-2])
	}
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '?', '!', '…':
		return true
	}
	return isFullWidthTerminator(r)
}

func isFullWidthTerminator(r rune) bool {
	switch r {
	case '。', '？', '！':
		return true
	}
	return false
}
