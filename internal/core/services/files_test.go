package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/identity"
)

func TestIsIndexable(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"notes.txt", true},
		{"README.md", true},
		{"guide.markdown", true},
		{"UPPER.TXT", true},
		{"/srv/docs/policy.md", true},
		{"report.pdf", false},
		{"image.png", false},
		{"Makefile", false},
		{".hidden.md", false},
		{"notes.txt.swp", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIndexable(tt.path))
		})
	}
}

func TestFileDocumentID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.md")

	assert.Equal(t, identity.DocumentID("policy", path), FileDocumentID(path))
	assert.Equal(t, FileDocumentID(path), FileDocumentID(path))
	assert.NotEqual(t, FileDocumentID(path), FileDocumentID(filepath.Join(dir, "other.md")))
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "security-policy.md")
	require.NoError(t, os.WriteFile(path, []byte("보안 정책은 회사의 자산을 보호합니다."), 0644))

	svc := &fakeRetrieval{}
	res, err := IngestFile(context.Background(), svc, path)
	require.NoError(t, err)
	assert.Equal(t, FileDocumentID(path), res.DocumentID)

	require.Len(t, svc.ingested, 1)
	req := svc.ingested[0]
	assert.Equal(t, "security-policy", req.Title)
	assert.Equal(t, path, req.Source)
	assert.Equal(t, "보안 정책은 회사의 자산을 보호합니다.", req.Text)
}

func TestIngestFile_Missing(t *testing.T) {
	_, err := IngestFile(context.Background(), &fakeRetrieval{}, filepath.Join(t.TempDir(), "gone.md"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIndexableFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":           "a",
		"sub/b.txt":      "b",
		"sub/c.go":       "c",
		".cache/d.md":    "d",
		"sub/.e/f.md":    "f",
		"sub/deep/g.txt": "g",
	})

	paths, err := IndexableFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "sub", "b.txt"),
		filepath.Join(root, "sub", "deep", "g.txt"),
	}, paths)
}
