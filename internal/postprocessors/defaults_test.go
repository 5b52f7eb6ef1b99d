package postprocessors

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/cleaner"
)

func TestDefaultPipeline_OffsetsReferToCleanedText(t *testing.T) {
	raw := strings.Repeat("보안 정책은\r\n회사의 정보 자산을\u200b 보호합니다.\r\n\r\n\r\n\r\n", 8)
	cleaned := cleaner.Clean(raw, 1)
	require.NotEqual(t, utf8.RuneCountInString(raw), utf8.RuneCountInString(cleaned))

	p, err := NewDefaultPipeline(domain.ChunkingSettings{Window: 60, Overlap: 10})
	require.NoError(t, err)

	doc := &domain.Document{ID: "policy", Text: raw}
	chunks, err := p.Process(context.Background(), doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, cleaned, doc.Text)

	runes := []rune(cleaned)
	var rebuilt strings.Builder
	end := 0
	for _, c := range chunks {
		assert.Equal(t, string(runes[c.Start:c.End]), c.Text)
		require.LessOrEqual(t, c.Start, end)
		rebuilt.WriteString(string(runes[end:c.End]))
		end = c.End
	}
	assert.Equal(t, cleaned, rebuilt.String())
}
