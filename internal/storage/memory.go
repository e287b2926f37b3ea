package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// MemoryStore keeps objects in process memory. It backs local runs without
// cloud credentials and the service tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string

	// FailUploads makes every upload fail, for exercising fallback paths.
	FailUploads bool
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), baseURL: baseURL}
}

func (m *MemoryStore) UploadFile(_ context.Context, reader io.Reader, objectName, _ string) (*UploadResult, error) {
	if m.FailUploads {
		return nil, fmt.Errorf("memory store: uploads disabled")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	m.mu.Lock()
	m.objects[objectName] = data
	m.mu.Unlock()
	return &UploadResult{
		ObjectName: objectName,
		PublicURL:  m.baseURL + "/" + objectName,
		Size:       int64(len(data)),
	}, nil
}

func (m *MemoryStore) ReadFile(_ context.Context, objectName string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[objectName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s: %w", objectName, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectName]; !ok {
		return fmt.Errorf("object %s: %w", objectName, os.ErrNotExist)
	}
	delete(m.objects, objectName)
	return nil
}

// Has reports whether objectName is stored.
func (m *MemoryStore) Has(objectName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[objectName]
	return ok
}

func (m *MemoryStore) Close() error {
	return nil
}
