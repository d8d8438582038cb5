package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionStoreSaveAndRecent(t *testing.T) {
	store, err := NewPredictionStore(StorageConfig{DBPath: filepath.Join(t.TempDir(), "data", "predictions.db")})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	records := []PredictionRecord{
		{RequestID: "req-1", Domain: "taxi", Source: string(SourceFile), RowIndex: 0, Input: `{"a":1}`, Value: 12.5},
		{RequestID: "req-1", Domain: "taxi", Source: string(SourceFile), RowIndex: 1, Input: `{"a":2}`, Value: 7.25},
	}
	require.NoError(t, store.SaveBatch(ctx, records))
	require.NoError(t, store.SaveBatch(ctx, nil))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 1, recent[0].RowIndex)
	assert.Equal(t, 7.25, recent[0].Value)
	assert.False(t, recent[0].CreatedAt.IsZero())
}

func TestPredictionStoreRequiresPath(t *testing.T) {
	_, err := NewPredictionStore(StorageConfig{})
	assert.Error(t, err)
}
