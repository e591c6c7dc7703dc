package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ObjectStore. failUploads lists keys whose upload
// should fail.
type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failUploads map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:     make(map[string][]byte),
		failUploads: make(map[string]bool),
	}
}

func (f *fakeStore) UploadObject(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUploads[key] {
		return errors.New("upload rejected")
	}
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) DownloadObject(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeStore) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func testRecord(chunkID, documentID string) *Record {
	return &Record{
		ChunkID:    chunkID,
		DocumentID: documentID,
		Content:    "content of " + chunkID,
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
}

func TestRepositoryPutGet(t *testing.T) {
	store := newFakeStore()
	repo := NewRepository(store, "vectors/", nil)
	ctx := context.Background()

	record := testRecord("doc1_chunk_0000", "doc1")
	require.NoError(t, repo.Put(ctx, record))
	assert.NotEmpty(t, record.CreatedAt)

	got, err := repo.Get(ctx, "doc1_chunk_0000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ChunkID, got.ChunkID)
	assert.Equal(t, record.Content, got.Content)
	assert.Equal(t, record.Embedding, got.Embedding)
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := NewRepository(newFakeStore(), "vectors/", nil)

	got, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepositoryPutOverwrites(t *testing.T) {
	store := newFakeStore()
	repo := NewRepository(store, "vectors/", nil)
	ctx := context.Background()

	first := testRecord("doc1_chunk_0000", "doc1")
	require.NoError(t, repo.Put(ctx, first))

	second := testRecord("doc1_chunk_0000", "doc1")
	second.Content = "updated"
	require.NoError(t, repo.Put(ctx, second))

	got, err := repo.Get(ctx, "doc1_chunk_0000")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)
}

func TestRepositoryGetAllSkipsIndexAndPoisoned(t *testing.T) {
	store := newFakeStore()
	repo := NewRepository(store, "vectors/", nil)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, testRecord("doc1_chunk_0000", "doc1")))
	require.NoError(t, repo.Put(ctx, testRecord("doc1_chunk_0001", "doc1")))

	// Poisoned object and a non-JSON key must both be skipped.
	store.objects["vectors/poison.json"] = []byte("{not json")
	store.objects["vectors/readme.txt"] = []byte("hello")

	records, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRepositoryDelete(t *testing.T) {
	store := newFakeStore()
	repo := NewRepository(store, "vectors/", nil)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, testRecord("doc1_chunk_0000", "doc1")))

	deleted, err := repo.Delete(ctx, "doc1_chunk_0000")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := repo.Get(ctx, "doc1_chunk_0000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepositoryPutBatch(t *testing.T) {
	store := newFakeStore()
	store.failUploads["vectors/doc1_chunk_0001.json"] = true
	repo := NewRepository(store, "vectors/", nil)
	ctx := context.Background()

	records := []*Record{
		testRecord("doc1_chunk_0000", "doc1"),
		testRecord("doc1_chunk_0001", "doc1"),
		testRecord("doc2_chunk_0000", "doc2"),
	}

	result, err := repo.PutBatch(ctx, records)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1_chunk_0000", "doc2_chunk_0000"}, result.Saved)
	assert.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed, "doc1_chunk_0001")

	index, err := repo.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, index.ChunkCount)
	assert.Contains(t, index.Records, "doc1_chunk_0000")
	assert.NotContains(t, index.Records, "doc1_chunk_0001")

	// Index blob must be valid JSON in the bucket.
	raw, ok := store.objects["vectors/index.json"]
	require.True(t, ok)
	var onDisk Index
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, index.ChunkCount, onDisk.ChunkCount)
}

func TestStorageErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &StorageError{Op: "put", Key: "k", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "put")
}
