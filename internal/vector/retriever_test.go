package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threshold(v float64) *float64 { return &v }

type fixedEmbedder struct {
	vector []float32
}

func (f fixedEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return f.vector, nil
}

func seededRetriever(t *testing.T, query []float32, records ...*Record) *Retriever {
	t.Helper()
	store := newFakeStore()
	repo := NewRepository(store, "vectors/", nil)
	for _, record := range records {
		require.NoError(t, repo.Put(context.Background(), record))
	}
	return NewRetriever(repo, fixedEmbedder{vector: query}, 5, 0.7, nil)
}

func embeddedRecord(chunkID string, embedding []float32) *Record {
	return &Record{
		ChunkID:    chunkID,
		DocumentID: "doc",
		Content:    "content " + chunkID,
		Embedding:  embedding,
	}
}

func TestRetrieverEmptyCorpus(t *testing.T) {
	r := seededRetriever(t, []float32{1, 0})

	results, err := r.Search(context.Background(), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieverOrdersBysimilarityDesc(t *testing.T) {
	r := seededRetriever(t, []float32{1, 0},
		embeddedRecord("far", []float32{0.7, 0.7}),
		embeddedRecord("exact", []float32{1, 0}),
		embeddedRecord("near", []float32{0.9, 0.1}),
	)

	results, err := r.Search(context.Background(), "q", SearchOptions{MinSimilarity: threshold(0.1)})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ChunkID)
	assert.Equal(t, "near", results[1].ChunkID)
	assert.Equal(t, "far", results[2].ChunkID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestRetrieverThresholdFiltersAll(t *testing.T) {
	r := seededRetriever(t, []float32{1, 0},
		embeddedRecord("exact", []float32{1, 0}),
	)

	results, err := r.Search(context.Background(), "q", SearchOptions{MinSimilarity: threshold(1.1)})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieverHonorsZeroAndNegativeThresholds(t *testing.T) {
	r := seededRetriever(t, []float32{1, 0},
		embeddedRecord("aligned", []float32{1, 0}),
		embeddedRecord("orthogonal", []float32{0, 1}),
		embeddedRecord("opposite", []float32{-1, 0}),
	)

	// Zero is a real threshold, not a request for the 0.7 default.
	results, err := r.Search(context.Background(), "q", SearchOptions{MinSimilarity: threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aligned", results[0].ChunkID)
	assert.Equal(t, "orthogonal", results[1].ChunkID)

	// -1 admits the whole cosine range.
	results, err = r.Search(context.Background(), "q", SearchOptions{MinSimilarity: threshold(-1)})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	// Unset still falls back to the retriever default.
	results, err = r.Search(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aligned", results[0].ChunkID)
}

func TestRetrieverTopKBound(t *testing.T) {
	records := make([]*Record, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, embeddedRecord(
			string(rune('a'+i)), []float32{1, float32(i) * 0.01}))
	}
	r := seededRetriever(t, []float32{1, 0}, records...)

	results, err := r.Search(context.Background(), "q", SearchOptions{TopK: 3, MinSimilarity: threshold(0.1)})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRetrieverSkipsDimensionMismatch(t *testing.T) {
	r := seededRetriever(t, []float32{1, 0},
		embeddedRecord("good", []float32{1, 0}),
		embeddedRecord("bad", []float32{1, 0, 0}),
	)

	results, err := r.Search(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].ChunkID)
}

func TestRetrieverInvalidateReloads(t *testing.T) {
	store := newFakeStore()
	repo := NewRepository(store, "vectors/", nil)
	r := NewRetriever(repo, fixedEmbedder{vector: []float32{1, 0}}, 5, 0.7, nil)
	ctx := context.Background()

	results, err := r.Search(ctx, "q", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	// New record is invisible until the cache is invalidated.
	require.NoError(t, repo.Put(ctx, embeddedRecord("late", []float32{1, 0})))
	results, err = r.Search(ctx, "q", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	r.Invalidate()
	results, err = r.Search(ctx, "q", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
