package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageObjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	data := []byte("%PDF-1.7 evidence")

	require.Error(t, s.PutObject(ctx, "evidence", "", bytes.NewReader(data), int64(len(data)), "application/pdf"))
	require.Error(t, s.PutObject(ctx, "evidence", "issues/1/a.pdf", bytes.NewReader(data), 3, "application/pdf"))
	require.NoError(t, s.PutObject(ctx, "evidence", "issues/1/a.pdf", bytes.NewReader(data), int64(len(data)), "application/pdf"))

	stat, err := s.StatObject(ctx, "evidence", "issues/1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), stat.SizeBytes)
	assert.Equal(t, "application/pdf", stat.ContentType)

	reader, err := s.GetObject(ctx, "evidence", "issues/1/a.pdf")
	require.NoError(t, err)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, data, got)

	_, err = s.GetObject(ctx, "other", "issues/1/a.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, s.RemoveObject(ctx, "evidence", "issues/1/a.pdf"))
	_, err = s.StatObject(ctx, "evidence", "issues/1/a.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, s.RemoveObject(ctx, "evidence", "issues/1/a.pdf"))
}

func TestMemoryStorageListAndBulkRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	for _, key := range []string{"issues/2/b", "issues/1/b", "issues/1/a", "issues/10/a"} {
		require.NoError(t, s.PutObject(ctx, "evidence", key, bytes.NewReader([]byte("x")), 1, ""))
	}

	var keys []string
	for info := range s.ListObjects(ctx, "evidence", "issues/1/") {
		keys = append(keys, info.Key)
	}
	assert.Equal(t, []string{"issues/1/a", "issues/1/b"}, keys)

	require.NoError(t, s.RemoveObjects(ctx, "evidence", keys))
	assert.Equal(t, 2, s.Len())
}
