package memory

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Snapshot is a stored page body and the content type it was written with.
type Snapshot struct {
	Data        []byte
	ContentType string
}

// BlobStore keeps page snapshots in memory and returns memory:// URIs. Like
// the durable backends it is write-once per path.
type BlobStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{snapshots: make(map[string]Snapshot)}
}

// PutObject stores a copy of data under p. A second write to the same path
// keeps the first body.
func (s *BlobStore) PutObject(_ context.Context, p string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	if path.IsAbs(p) || path.Clean(p) != p || strings.HasPrefix(p, "../") || p == ".." {
		return "", fmt.Errorf("invalid snapshot path %q", p)
	}
	if strings.TrimSpace(contentType) == "" {
		return "", errors.New("content type is required")
	}
	uri := "memory://" + p

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[p]; !exists {
		s.snapshots[p] = Snapshot{Data: append([]byte(nil), data...), ContentType: contentType}
	}
	return uri, nil
}

// Object returns the stored bytes for p.
func (s *BlobStore) Object(p string) ([]byte, bool) {
	snap, ok := s.Snapshot(p)
	return snap.Data, ok
}

// Snapshot returns a copy of the stored snapshot for p.
func (s *BlobStore) Snapshot(p string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[p]
	if !ok {
		return Snapshot{}, false
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return snap, true
}

// Len reports how many snapshots are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
