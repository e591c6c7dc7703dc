package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/storage"
)

const indexObject = "index.json"

// ObjectStore is the object storage surface the repository depends on.
// *storage.S3Client satisfies it.
type ObjectStore interface {
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
	DownloadObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// BatchResult reports the outcome of a batch write. Failed chunk ids are
// never silently dropped from the result.
type BatchResult struct {
	Saved  []string
	Failed map[string]error
}

// Repository persists embedding records as JSON objects under a key prefix,
// one object per chunk, plus a single index object.
type Repository struct {
	store  ObjectStore
	prefix string
	logger observability.Logger

	// index read-modify-write is serialized per process; concurrent writers
	// across processes accept eventual staleness
	indexMu    sync.Mutex
	indexCache *Index
}

// NewRepository creates a repository over the given object store
func NewRepository(store ObjectStore, prefix string, logger observability.Logger) *Repository {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Repository{
		store:  store,
		prefix: prefix,
		logger: logger.WithPrefix("vector_repository"),
	}
}

func (r *Repository) recordKey(chunkID string) string {
	return r.prefix + chunkID + ".json"
}

func (r *Repository) indexKey() string {
	return r.prefix + indexObject
}

// Put stores a single record, overwriting any existing record with the same
// chunk id. The index is not touched; use PutBatch for indexed writes.
func (r *Repository) Put(ctx context.Context, record *Record) error {
	if record.ChunkID == "" {
		return &StorageError{Op: "put", Err: fmt.Errorf("chunk_id is required")}
	}
	if record.CreatedAt == "" {
		record.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &StorageError{Op: "put", Key: record.ChunkID, Err: err}
	}

	key := r.recordKey(record.ChunkID)
	if err := r.store.UploadObject(ctx, key, data, "application/json"); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}

	r.logger.Debug("stored vector record", map[string]interface{}{
		"chunk_id": record.ChunkID,
		"key":      key,
	})
	return nil
}

// Get loads a record by chunk id. A missing record returns (nil, nil).
func (r *Repository) Get(ctx context.Context, chunkID string) (*Record, error) {
	key := r.recordKey(chunkID)

	data, err := r.store.DownloadObject(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: fmt.Errorf("corrupt record: %w", err)}
	}
	return &record, nil
}

// GetAll loads every record under the prefix. Individual objects that fail
// to load or parse are logged and skipped so one poisoned record does not
// abort the whole scan.
func (r *Repository) GetAll(ctx context.Context) ([]Record, error) {
	keys, err := r.store.ListKeys(ctx, r.prefix)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: r.prefix, Err: err}
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, indexObject) || !strings.HasSuffix(key, ".json") {
			continue
		}

		data, err := r.store.DownloadObject(ctx, key)
		if err != nil {
			r.logger.Warn("failed to load vector record, skipping", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			continue
		}

		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			r.logger.Warn("failed to parse vector record, skipping", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			continue
		}
		records = append(records, record)
	}

	r.logger.Info("loaded vector records", map[string]interface{}{"count": len(records)})
	return records, nil
}

// Delete removes a record and its index entry. Returns false when the record
// was not indexed (best effort: the object delete is issued regardless since
// S3 deletes are idempotent).
func (r *Repository) Delete(ctx context.Context, chunkID string) (bool, error) {
	key := r.recordKey(chunkID)
	if err := r.store.DeleteObject(ctx, key); err != nil {
		return false, &StorageError{Op: "delete", Key: key, Err: err}
	}

	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	index, err := r.loadIndexLocked(ctx)
	if err != nil {
		return false, err
	}

	if _, ok := index.Records[chunkID]; !ok {
		return false, nil
	}

	delete(index.Records, chunkID)
	index.ChunkCount = len(index.Records)
	index.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := r.saveIndexLocked(ctx, index); err != nil {
		return false, err
	}

	r.logger.Info("deleted vector record", map[string]interface{}{"chunk_id": chunkID})
	return true, nil
}

// PutBatch stores a set of records and updates the index once for the whole
// batch. Per-record failures are collected in the result; only successfully
// stored chunk ids enter the index.
func (r *Repository) PutBatch(ctx context.Context, records []*Record) (*BatchResult, error) {
	result := &BatchResult{Failed: make(map[string]error)}
	saved := make([]*Record, 0, len(records))

	for _, record := range records {
		if err := r.Put(ctx, record); err != nil {
			r.logger.Error("failed to store vector record", map[string]interface{}{
				"chunk_id": record.ChunkID,
				"error":    err.Error(),
			})
			result.Failed[record.ChunkID] = err
			continue
		}
		result.Saved = append(result.Saved, record.ChunkID)
		saved = append(saved, record)
	}

	if len(saved) > 0 {
		if err := r.updateIndex(ctx, saved); err != nil {
			return result, err
		}
	}

	r.logger.Info("stored vector batch", map[string]interface{}{
		"saved":  len(result.Saved),
		"failed": len(result.Failed),
	})
	return result, nil
}

// LoadIndex returns the current index, reading it from storage on first use.
// A missing index object yields a fresh empty index.
func (r *Repository) LoadIndex(ctx context.Context) (*Index, error) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	index, err := r.loadIndexLocked(ctx)
	if err != nil {
		return nil, err
	}
	// Copy so callers cannot mutate the cache
	cp := &Index{
		Records:       make(map[string]string, len(index.Records)),
		DocumentCount: index.DocumentCount,
		ChunkCount:    index.ChunkCount,
		UpdatedAt:     index.UpdatedAt,
	}
	for k, v := range index.Records {
		cp.Records[k] = v
	}
	return cp, nil
}

// InvalidateIndexCache drops the cached index so the next read hits storage
func (r *Repository) InvalidateIndexCache() {
	r.indexMu.Lock()
	r.indexCache = nil
	r.indexMu.Unlock()
}

func (r *Repository) loadIndexLocked(ctx context.Context) (*Index, error) {
	if r.indexCache != nil {
		return r.indexCache, nil
	}

	data, err := r.store.DownloadObject(ctx, r.indexKey())
	if err != nil {
		if storage.IsNotFound(err) {
			r.indexCache = NewIndex()
			return r.indexCache, nil
		}
		return nil, &StorageError{Op: "load index", Key: r.indexKey(), Err: err}
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, &StorageError{Op: "load index", Key: r.indexKey(), Err: err}
	}
	if index.Records == nil {
		index.Records = make(map[string]string)
	}

	r.indexCache = &index
	return r.indexCache, nil
}

func (r *Repository) saveIndexLocked(ctx context.Context, index *Index) error {
	data, err := json.Marshal(index)
	if err != nil {
		return &StorageError{Op: "save index", Key: r.indexKey(), Err: err}
	}
	if err := r.store.UploadObject(ctx, r.indexKey(), data, "application/json"); err != nil {
		return &StorageError{Op: "save index", Key: r.indexKey(), Err: err}
	}
	r.indexCache = index
	return nil
}

func (r *Repository) updateIndex(ctx context.Context, saved []*Record) error {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	index, err := r.loadIndexLocked(ctx)
	if err != nil {
		return err
	}

	for _, record := range saved {
		index.Records[record.ChunkID] = r.recordKey(record.ChunkID)
	}

	// The index is a derived, rebuildable cache; document_count tracks the
	// documents seen in batches and may drift until a rebuild
	documents := make(map[string]struct{})
	for _, record := range saved {
		documents[record.DocumentID] = struct{}{}
	}
	if len(documents) > index.DocumentCount {
		index.DocumentCount = len(documents)
	}
	index.ChunkCount = len(index.Records)
	index.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	return r.saveIndexLocked(ctx, index)
}
