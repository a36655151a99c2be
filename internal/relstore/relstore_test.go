package relstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return newTestStorePool(t, 1)
}

func newTestStorePool(t *testing.T, maxOpenConns int) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg := config.RelStoreConfig{DSN: config.Secret(dsn), TimeoutSec: config.Duration(5 * time.Second)}
	store, err := Open(cfg, maxOpenConns, errkind.DefaultRetryPolicy)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsert_NewDocument(t *testing.T) {
	store := newTestStore(t)
	docID, existing, err := store.Insert(t.Context(), "lot-1", "a.pdf", "pdf", "hello world")
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Greater(t, docID, int64(0))
}

func TestInsert_DuplicateReturnsExistingRow(t *testing.T) {
	store := newTestStore(t)
	firstID, _, err := store.Insert(t.Context(), "lot-1", "a.pdf", "pdf", "hello world")
	require.NoError(t, err)

	secondID, existing, err := store.Insert(t.Context(), "lot-1", "a.pdf", "pdf", "different content")
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, firstID, secondID)
}

func TestGetByDocID_MissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	doc, err := store.GetByDocID(t.Context(), 999)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGetByDocID_ReturnsInsertedRow(t *testing.T) {
	store := newTestStore(t)
	docID, _, err := store.Insert(t.Context(), "lot-1", "a.pdf", "pdf", "hello world")
	require.NoError(t, err)

	doc, err := store.GetByDocID(t.Context(), docID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "lot-1", doc.LotID)
	assert.Equal(t, "hello world", doc.Content)
}

func TestListDocuments_ReturnsAllRows(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Insert(t.Context(), "lot-1", "a.pdf", "pdf", "hello")
	require.NoError(t, err)
	_, _, err = store.Insert(t.Context(), "lot-2", "b.pdf", "pdf", "world")
	require.NoError(t, err)

	docs, err := store.ListDocuments(t.Context())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestInsert_ConcurrentIdenticalKeyProducesExactlyOneDocument(t *testing.T) {
	store := newTestStorePool(t, 6)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func(i int) {
			defer wg.Done()
			docID, _, err := store.Insert(t.Context(), "lot-1", "shared.pdf", "pdf", "concurrent content")
			ids[i], errs[i] = docID, err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}

	docs, err := store.ListDocuments(t.Context())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRecordBatchStartAndFinish(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.RecordBatchStart(t.Context(), "batch-1", now))
	require.NoError(t, store.RecordBatchFinish(t.Context(), "batch-1", now.Add(time.Minute), `{"found":1}`))
}
