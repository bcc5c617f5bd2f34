package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/feichai0017/numbers2pdf/pkg/storage/objerr"
)

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Storage keeps objects in process memory.
type Storage struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for last-modified times.
func (s *Storage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Storage) Store(ctx context.Context, reader io.Reader, key string, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: data, contentType: contentType, lastModified: s.now()}
	return key, nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, objerr.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *Storage) CleanupBefore(ctx context.Context, threshold time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, obj := range s.objects {
		if obj.lastModified.Before(threshold) {
			delete(s.objects, key)
			removed++
		}
	}
	return removed, nil
}

// Keys lists stored keys in no particular order.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// ContentType reports the content type recorded for key.
func (s *Storage) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}
