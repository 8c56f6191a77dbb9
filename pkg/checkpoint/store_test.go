package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndLoad_LocalOnly(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, 3)
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("checkpoint payload v1")

	ck, err := store.Save(ctx, "job-1", payload, EncodingBinary)
	require.NoError(t, err)
	assert.Equal(t, 1, ck.Seq)
	assert.True(t, ck.LocalWritten)
	assert.False(t, ck.RemoteWritten)

	loaded, err := store.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, payload, loaded.Payload)
	assert.Equal(t, ck.SHA256, loaded.SHA256)
}

func TestStore_Save_SequenceIncrements(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, 10)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		ck, err := store.Save(ctx, "job-2", []byte("payload"), EncodingBinary)
		require.NoError(t, err)
		assert.Equal(t, i, ck.Seq)
	}
}

func TestStore_KeepNRetention_NeverDropsBelowKeepN(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, 2)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Save(ctx, "job-3", []byte("payload"), EncodingBinary)
		require.NoError(t, err)
	}

	entries, err := store.List("job-3")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Retained entries must be the most recent two.
	seqs := map[int]bool{}
	for _, e := range entries {
		seqs[e.Seq] = true
	}
	assert.True(t, seqs[4] && seqs[5])
}

func TestStore_Load_NoCheckpoints_Errors(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, 3)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "nonexistent-job")
	assert.Error(t, err)
}

func TestStore_DeleteAll_RemovesIndexAndPayloads(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, 3)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Save(ctx, "job-4", []byte("payload"), EncodingBinary)
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(ctx, "job-4"))

	entries, err := store.List("job-4")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
