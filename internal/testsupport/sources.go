package testsupport

import (
	"context"
	"io"
	"sync"
	"time"
)

// MemorySources stages source objects in memory and signs URLs with a fake host.
type MemorySources struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemorySources creates an empty staging area.
func NewMemorySources() *MemorySources {
	return &MemorySources{objects: make(map[string][]byte)}
}

func (s *MemorySources) PresignUpload(_ context.Context, key, _ string) (string, error) {
	return "https://sources.test/put/" + key, nil
}

func (s *MemorySources) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://sources.test/get/" + key, nil
}

func (s *MemorySources) PresignExpire() time.Duration { return time.Hour }

func (s *MemorySources) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.Put(key, b)
	return nil
}

func (s *MemorySources) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Put stores an object as if a client had uploaded it.
func (s *MemorySources) Put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
}

// Len returns the number of staged objects.
func (s *MemorySources) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Object returns a staged object's bytes.
func (s *MemorySources) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}
