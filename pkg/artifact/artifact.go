package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

// Store persists analysis input artifacts so the retry scheduler can
// re-fetch the original bytes on a re-attempt.
type Store interface {
	Put(ctx context.Context, id string, data []byte) (url string, err error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// MemoryStore keeps artifacts in-process; used in development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, id string, data []byte) (string, error) {
	url := "mem://" + id
	s.mu.Lock()
	s.blobs[url] = append([]byte(nil), data...)
	s.mu.Unlock()
	return url, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[url]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// fetchHTTP downloads a stored artifact over HTTP; shared by remote stores.
func fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifact fetch: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
