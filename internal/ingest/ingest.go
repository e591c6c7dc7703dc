package ingest

import (
	"context"
	"fmt"

	"github.com/docuchat/docuchat/internal/chunking"
	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/vector"
)

// Embedder converts chunk text into embedding vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	Documents    int
	Chunks       int
	Saved        int
	Failed       int
	FailedChunks map[string]error
}

// Pipeline turns documents into stored vector records: chunk, embed, batch
// store.
type Pipeline struct {
	chunker  *chunking.Chunker
	embedder Embedder
	repo     *vector.Repository
	logger   observability.Logger
}

// NewPipeline wires the ingestion stages.
func NewPipeline(chunker *chunking.Chunker, embedder Embedder, repo *vector.Repository, logger observability.Logger) *Pipeline {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Pipeline{chunker: chunker, embedder: embedder, repo: repo, logger: logger}
}

// IngestDocuments processes documents one by one. Embedding failures are
// collected per chunk; a failed chunk does not abort the run.
func (p *Pipeline) IngestDocuments(ctx context.Context, documents []*Document) (*Stats, error) {
	stats := &Stats{FailedChunks: make(map[string]error)}

	for _, doc := range documents {
		if err := p.ingestDocument(ctx, doc, stats); err != nil {
			return stats, err
		}
		stats.Documents++
	}

	p.logger.Info("Ingestion completed", map[string]interface{}{
		"documents": stats.Documents,
		"chunks":    stats.Chunks,
		"saved":     stats.Saved,
		"failed":    stats.Failed,
	})
	return stats, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc *Document, stats *Stats) error {
	documentID := chunking.DocumentIDFromFilename(doc.Filename)
	chunks := p.chunker.ChunkText(doc.Content, documentID, map[string]interface{}{
		"filename":  doc.Filename,
		"file_type": doc.FileType,
		"file_path": doc.FilePath,
	})
	if len(chunks) == 0 {
		p.logger.Warn("Document produced no chunks", map[string]interface{}{
			"filename": doc.Filename,
		})
		return nil
	}
	stats.Chunks += len(chunks)

	records := make([]*vector.Record, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := p.embedder.EmbedText(ctx, chunk.Content)
		if err != nil {
			stats.Failed++
			stats.FailedChunks[chunk.ChunkID] = err
			p.logger.Warn("Failed to embed chunk", map[string]interface{}{
				"chunk_id": chunk.ChunkID,
				"error":    err.Error(),
			})
			continue
		}
		records = append(records, &vector.Record{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Embedding:  embedding,
			Metadata:   chunk.Metadata,
		})
	}

	if len(records) == 0 {
		return nil
	}

	result, err := p.repo.PutBatch(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to store vectors for %s: %w", doc.Filename, err)
	}
	stats.Saved += len(result.Saved)
	stats.Failed += len(result.Failed)
	for chunkID, saveErr := range result.Failed {
		stats.FailedChunks[chunkID] = saveErr
	}
	return nil
}
