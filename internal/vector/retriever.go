package vector

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/docuchat/docuchat/internal/observability"
)

// Embedder converts text into an embedding vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// SearchOptions control a similarity search. Unset values fall back to the
// retriever defaults. MinSimilarity is a pointer because the whole cosine
// range [-1, 1] is a valid threshold, zero included.
type SearchOptions struct {
	TopK          int
	MinSimilarity *float64
}

// Retriever performs cosine-similarity search over the records held in a
// Repository. The full record set is cached in memory and swapped atomically
// on reload, so concurrent searches never observe a partially loaded corpus.
type Retriever struct {
	repo     *Repository
	embedder Embedder
	logger   observability.Logger

	defaultTopK          int
	defaultMinSimilarity float64

	cache atomic.Pointer[[]Record]
}

// NewRetriever creates a retriever over repo using embedder for query
// embedding. defaultTopK and defaultMinSimilarity apply when SearchOptions
// leave them unset.
func NewRetriever(repo *Repository, embedder Embedder, defaultTopK int, defaultMinSimilarity float64, logger observability.Logger) *Retriever {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		repo:                 repo,
		embedder:             embedder,
		logger:               logger,
		defaultTopK:          defaultTopK,
		defaultMinSimilarity: defaultMinSimilarity,
	}
}

// Search embeds the query text and returns the most similar records.
func (r *Retriever) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return r.SearchByEmbedding(ctx, embedding, opts)
}

// SearchByEmbedding scans the cached corpus and returns records whose cosine
// similarity to the given vector meets the threshold, ordered by descending
// similarity and truncated to top-k. Records whose embedding dimension does
// not match the query are skipped.
func (r *Retriever) SearchByEmbedding(ctx context.Context, embedding []float32, opts SearchOptions) ([]SearchResult, error) {
	records, err := r.records(ctx)
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}
	minSimilarity := r.defaultMinSimilarity
	if opts.MinSimilarity != nil {
		minSimilarity = *opts.MinSimilarity
	}

	results := make([]SearchResult, 0, topK)
	for i := range records {
		record := &records[i]
		similarity, err := CosineSimilarity(embedding, record.Embedding)
		if err != nil {
			r.logger.Warn("Skipping record during search", map[string]interface{}{
				"chunk_id": record.ChunkID,
				"error":    err.Error(),
			})
			continue
		}
		if similarity < minSimilarity {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:    record.ChunkID,
			DocumentID: record.DocumentID,
			Content:    record.Content,
			Similarity: similarity,
			Metadata:   record.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Invalidate drops the cached corpus. The next search reloads from storage.
func (r *Retriever) Invalidate() {
	r.cache.Store(nil)
	r.repo.InvalidateIndexCache()
}

// Reload fetches the corpus from storage and swaps it into the cache.
func (r *Retriever) Reload(ctx context.Context) error {
	records, err := r.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload vector cache: %w", err)
	}
	r.cache.Store(&records)
	r.logger.Info("Vector cache reloaded", map[string]interface{}{
		"records": len(records),
	})
	return nil
}

func (r *Retriever) records(ctx context.Context) ([]Record, error) {
	if cached := r.cache.Load(); cached != nil {
		return *cached, nil
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	cached := r.cache.Load()
	if cached == nil {
		return nil, nil
	}
	return *cached, nil
}
