// Package ingest loads documents and feeds them through chunking and
// embedding into the vector store.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is a loaded source document.
type Document struct {
	Content  string
	Filename string
	FilePath string
	FileType string
}

// Loader reads one file format into a Document. PDF and DOCX extraction are
// intentionally not implemented here; plug in a Loader to add a format.
type Loader interface {
	Supports(ext string) bool
	Load(path string) (*Document, error)
}

// TextLoader reads plain text and markdown files as UTF-8.
type TextLoader struct{}

func (TextLoader) Supports(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md":
		return true
	}
	return false
}

func (TextLoader) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &Document{
		Content:  string(data),
		Filename: filepath.Base(path),
		FilePath: path,
		FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}, nil
}

// LoadDirectory walks dir and loads every file a loader supports. Unsupported
// files are skipped silently.
func LoadDirectory(dir string, loaders ...Loader) ([]*Document, error) {
	if len(loaders) == 0 {
		loaders = []Loader{TextLoader{}}
	}

	var documents []*Document
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		for _, loader := range loaders {
			if !loader.Supports(ext) {
				continue
			}
			doc, err := loader.Load(path)
			if err != nil {
				return err
			}
			documents = append(documents, doc)
			break
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return documents, nil
}
