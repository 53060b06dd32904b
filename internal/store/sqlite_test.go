package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/appfunctions-sdk/internal/store"
)

func newTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store-and-forward.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_PutAndGetAllByAppServiceKey(t *testing.T) {
	s := newTestSQLiteStore(t)

	obj := store.StoredObject{
		ID:               "a",
		AppServiceKey:    "svc-1",
		Payload:          []byte("payload"),
		PipelineID:       "p1",
		PipelinePosition: 2,
		Version:          "v1",
		CorrelationID:    "corr-1",
		RetryCount:       0,
		ContextData:      map[string]string{"devicename": "sensor-1"},
	}
	require.NoError(t, s.Put(obj))

	others, err := s.GetAllByAppServiceKey("svc-2")
	require.NoError(t, err)
	assert.Empty(t, others)

	got, err := s.GetAllByAppServiceKey("svc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, obj.ID, got[0].ID)
	assert.Equal(t, obj.Payload, got[0].Payload)
	assert.Equal(t, obj.PipelinePosition, got[0].PipelinePosition)
	assert.Equal(t, obj.Version, got[0].Version)
	assert.Equal(t, obj.ContextData, got[0].ContextData)
}

func TestSQLiteStore_Update(t *testing.T) {
	s := newTestSQLiteStore(t)

	obj := store.StoredObject{ID: "a", AppServiceKey: "svc-1", Payload: []byte("payload"), PipelineID: "p1", Version: "v1"}
	require.NoError(t, s.Put(obj))

	obj.RetryCount = 3
	require.NoError(t, s.Update(obj))

	got, err := s.GetAllByAppServiceKey("svc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].RetryCount)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestSQLiteStore(t)

	obj := store.StoredObject{ID: "a", AppServiceKey: "svc-1", Payload: []byte("payload"), PipelineID: "p1", Version: "v1"}
	require.NoError(t, s.Put(obj))
	require.NoError(t, s.Delete(obj.ID))

	got, err := s.GetAllByAppServiceKey("svc-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store-and-forward.db")

	s1, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Put(store.StoredObject{ID: "a", AppServiceKey: "svc-1", Payload: []byte("payload"), PipelineID: "p1", Version: "v1"}))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetAllByAppServiceKey("svc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}
