package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/identity"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// indexableExtensions are the plain-text formats read from disk.
var indexableExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// IsIndexable reports whether path names a plain-text file the pipeline
// can ingest directly.
func IsIndexable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return indexableExtensions[strings.ToLower(filepath.Ext(base))]
}

// FileDocumentID returns the id a file is indexed under. It depends only on
// the absolute path, so edits to a file replace its previous version.
func FileDocumentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return identity.DocumentID(fileTitle(path), path)
}

// IngestFile reads a text file and ingests it under FileDocumentID.
func IngestFile(ctx context.Context, svc driving.RetrievalService, path string) (*domain.IngestResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return svc.Ingest(ctx, domain.IngestRequest{
		ID:     FileDocumentID(abs),
		Title:  fileTitle(abs),
		Text:   string(data),
		Source: abs,
	})
}

// IndexableFiles walks dir and returns every indexable file below it,
// skipping hidden directories.
func IndexableFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsIndexable(path) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func fileTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
