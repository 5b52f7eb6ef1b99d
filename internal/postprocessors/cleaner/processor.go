// Package cleaner normalises document text before it is chunked, so the
// same passage always yields the same chunks and embeddings regardless of
// how the upstream extractor encoded it.
package cleaner

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// ErrAfterChunker is returned when the cleaner is placed after a stage
// that already produced chunks.
var ErrAfterChunker = errors.New("cleaner: must run before the chunker")

// zeroWidth runes carry no text and split Hangul words when hashed.
var zeroWidth = map[rune]bool{
	'\u200B': true,
	'\u200C': true,
	'\u200D': true,
	'\u2060': true,
	'\uFEFF': true,
	'\u180E': true,
}

// Processor rewrites Document.Text in place and passes chunks through.
type Processor struct {
	maxBlankLines int
}

// Option configures a Processor.
type Option func(*Processor)

// WithMaxBlankLines limits consecutive empty lines (default: 1).
// Zero or less disables the limit.
func WithMaxBlankLines(n int) Option {
	return func(p *Processor) {
		p.maxBlankLines = n
	}
}

// New creates a cleaner.
func New(opts ...Option) *Processor {
	p := &Processor{maxBlankLines: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "cleaner"
}

// Process cleans doc.Text. It must see no chunks yet.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		return nil, ErrAfterChunker
	}
	doc.Text = Clean(doc.Text, p.maxBlankLines)
	return chunks, nil
}

// Clean returns s as valid NFC text with unified line endings, without
// zero-width or control characters, and with exotic spaces mapped to ' '.
// Runs of more than maxBlank empty lines are shortened when maxBlank > 0.
func Clean(s string, maxBlank int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	newlines := 0
	for _, r := range s {
		switch {
		case r == '\n':
			newlines++
			if maxBlank > 0 && newlines > maxBlank+1 {
				continue
			}
		case zeroWidth[r]:
			continue
		case r == '\t':
			newlines = 0
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			r = ' '
			newlines = 0
		default:
			newlines = 0
		}
		b.WriteRune(r)
	}
	return b.String()
}
