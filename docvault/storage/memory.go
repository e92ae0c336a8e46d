package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryObjectStore is an in-process ObjectStore used in tests and local
// development. Listings are paginated with a real page size so that
// continuation-token handling in callers is exercised.
type MemoryObjectStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	pageSize int
}

const defaultMemoryPageSize = 1000

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte), pageSize: defaultMemoryPageSize}
}

// SetPageSize lowers the listing page size, used in tests to force
// multi-page listings with small object counts.
func (m *MemoryObjectStore) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

func (m *MemoryObjectStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("error reading object data for %v: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = content
	return nil
}

func (m *MemoryObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %v does not exist", key)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryObjectStore) List(ctx context.Context, prefix, continuationToken string) (ListPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for key := range m.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if continuationToken != "" {
		offset, err := strconv.Atoi(continuationToken)
		if err != nil || offset < 0 || offset > len(keys) {
			return ListPage{}, fmt.Errorf("invalid continuation token '%v'", continuationToken)
		}
		start = offset
	}

	end := start + m.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	page := ListPage{Objects: make([]Object, 0, end-start)}
	for _, key := range keys[start:end] {
		page.Objects = append(page.Objects, Object{Key: key, Size: int64(len(m.objects[key]))})
	}
	if end < len(keys) {
		page.IsTruncated = true
		page.NextToken = strconv.Itoa(end)
	}

	return page, nil
}

func (m *MemoryObjectStore) SignedUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %v does not exist", key)
	}
	return fmt.Sprintf("memory://%v?expires=%d", key, time.Now().Add(ttl).Unix()), nil
}
