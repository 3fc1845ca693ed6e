package upload

import (
	"context"
	"strings"
	"sync"
)

// Object is a stored photo.
type Object struct {
	ContentType string
	Data        []byte
}

// InMemoryStore is an in-memory implementation of ObjectStore.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu            sync.RWMutex
	objects       map[string]Object
	publicBaseURL string
}

// NewInMemoryStore creates an empty store whose public URLs start with publicBaseURL.
func NewInMemoryStore(publicBaseURL string) *InMemoryStore {
	return &InMemoryStore{
		objects:       make(map[string]Object),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Upload stores a copy of data under key, replacing any existing object.
func (s *InMemoryStore) Upload(ctx context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = Object{ContentType: contentType, Data: buf}
	return nil
}

// PublicURL returns the public URL of key.
func (s *InMemoryStore) PublicURL(key string) string {
	return publicURL(s.publicBaseURL, key)
}

// Remove deletes the object. Missing keys are not an error.
func (s *InMemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// Get returns the object stored under key.
func (s *InMemoryStore) Get(key string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	return obj, nil
}

// Len returns the number of stored objects.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
