package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageOf(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     int
	}{
		{"nil metadata", nil, 0},
		{"missing key", map[string]any{"title": "x"}, 0},
		{"int", map[string]any{"page": 4}, 4},
		{"int64", map[string]any{"page": int64(7)}, 7},
		{"float64 from JSON", map[string]any{"page": float64(2)}, 2},
		{"string is ignored", map[string]any{"page": "3"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageOf(tt.metadata))
		})
	}
}

func TestChunk_ZeroValue(t *testing.T) {
	var c Chunk
	assert.Nil(t, c.Vector)
	assert.Zero(t, c.Seq)
	assert.Zero(t, c.Page)
}

func TestValidateChunkSet(t *testing.T) {
	set := []Chunk{
		{ID: "a", DocumentID: "doc", Index: 0},
		{ID: "b", DocumentID: "doc", Index: 1},
	}

	tests := []struct {
		name    string
		docID   string
		chunks  []Chunk
		wantErr bool
	}{
		{"complete set", "doc", set, false},
		{"empty set", "doc", nil, false},
		{"missing document id", "", set, true},
		{"foreign chunk", "other", set, true},
		{"gap in indexes", "doc", []Chunk{{ID: "a", DocumentID: "doc", Index: 1}}, true},
		{"out of order", "doc", []Chunk{set[1], set[0]}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunkSet(tt.docID, tt.chunks)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
