package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStorage is an in-process Storage used by tests and development mode.
// "Uploading" is simulated by calling Put directly.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]ObjectInfo
	removed []string

	// FailRemove makes Remove fail for the given keys, for exercising the
	// purge retry path in tests.
	FailRemove map[string]bool
}

// NewMemoryStorage creates an empty in-memory object store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects:    make(map[string]ObjectInfo),
		FailRemove: make(map[string]bool),
	}
}

// Put stores object metadata, standing in for a client's direct upload.
func (s *MemoryStorage) Put(key string, size int64, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = ObjectInfo{Size: size, ContentType: contentType}
}

// Has reports whether an object exists at key.
func (s *MemoryStorage) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// Removed returns the keys deleted so far, in order.
func (s *MemoryStorage) Removed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

// PresignPut returns a fake upload URL.
func (s *MemoryStorage) PresignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "memory://upload/" + key, nil
}

// PresignGet returns a fake download URL, failing if the object is missing.
func (s *MemoryStorage) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", ErrNotFound
	}
	return "memory://download/" + key, nil
}

// Stat reports the stored object metadata.
func (s *MemoryStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return info, nil
}

// Remove deletes the object at key; missing keys succeed.
func (s *MemoryStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRemove[key] {
		return fmt.Errorf("simulated remove failure for %q", key)
	}
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}
