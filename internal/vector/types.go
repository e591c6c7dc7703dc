// Package vector implements the embedding vector store and the similarity
// search engine over it. Vectors live as one JSON object per chunk in S3,
// with a single index object summarizing the record set.
package vector

import (
	"errors"
	"fmt"
	"time"
)

// ErrDimensionMismatch indicates two vectors of different dimensions were
// compared. This is a data-integrity defect in the corpus, not a runtime
// search condition.
var ErrDimensionMismatch = errors.New("vector dimensions do not match")

// StorageError wraps a failure of the underlying object store
type StorageError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("vector storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("vector storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error { return e.Err }

// Record is one stored embedding with its source chunk. Records are
// immutable once written; re-putting the same chunk_id overwrites.
type Record struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	Content    string                 `json:"content"`
	Embedding  []float32              `json:"embedding"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  string                 `json:"created_at"`
}

// Index is a derived, rebuildable summary of the record set. It maps each
// chunk id to its storage key and is rewritten once per batch.
type Index struct {
	Records       map[string]string `json:"records"`
	DocumentCount int               `json:"document_count"`
	ChunkCount    int               `json:"chunk_count"`
	UpdatedAt     string            `json:"updated_at"`
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		Records:   make(map[string]string),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// SearchResult is one ranked retrieval hit. It is produced per query and
// never persisted.
type SearchResult struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	Content    string                 `json:"content"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata"`
}
