package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStoreRoundtrip(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()

	err := store.Put(ctx, "user1/passport/a.pdf", bytes.NewReader([]byte("contents")), "application/pdf")
	require.NoError(t, err)

	body, err := store.Open(ctx, "user1/passport/a.pdf")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("contents"), data)

	_, err = store.Open(ctx, "user1/passport/missing.pdf")
	assert.Error(t, err)

	err = store.Delete(ctx, "user1/passport/a.pdf")
	require.NoError(t, err)

	_, err = store.Open(ctx, "user1/passport/a.pdf")
	assert.Error(t, err)
}

func TestMemoryObjectStoreListPagination(t *testing.T) {
	store := NewMemoryObjectStore()
	store.SetPageSize(4)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("user1/doc%02d", i)
		err := store.Put(ctx, key, bytes.NewReader(make([]byte, i+1)), "application/octet-stream")
		require.NoError(t, err)
	}
	err := store.Put(ctx, "user2/doc", bytes.NewReader([]byte("x")), "application/octet-stream")
	require.NoError(t, err)

	var keys []string
	token := ""
	pages := 0
	for {
		page, err := store.List(ctx, "user1/", token)
		require.NoError(t, err)
		pages++
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if !page.IsTruncated {
			break
		}
		token = page.NextToken
	}

	assert.Len(t, keys, 10)
	assert.Equal(t, 3, pages)
	assert.NotContains(t, keys, "user2/doc")
}

func TestMemoryObjectStoreSignedUrl(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()

	err := store.Put(ctx, "user1/a", bytes.NewReader([]byte("x")), "application/octet-stream")
	require.NoError(t, err)

	url, err := store.SignedUrl(ctx, "user1/a", 30*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	_, err = store.SignedUrl(ctx, "user1/missing", 30*time.Minute)
	assert.Error(t, err)
}
