// Package status tracks the state of long-running analyses keyed by
// experiment or session ID.
package status

import (
	"sync"
	"time"

	"tracelens/internal/models"
)

// Store is the injected status table. TryStart gives single-writer-per-key:
// a second trigger for a key whose run is still pending or running is refused.
type Store interface {
	Get(key string) (models.AnalysisStatus, bool)
	Set(key string, st models.AnalysisStatus)
	TryStart(key string) bool
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]models.AnalysisStatus
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m: map[string]models.AnalysisStatus{},
	}
}

// Get returns the latest status for a key.
func (s *MemoryStore) Get(key string) (models.AnalysisStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[key]
	return st, ok
}

// Set records the status for a key, stamping the update time.
func (s *MemoryStore) Set(key string, st models.AnalysisStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Key = key
	st.UpdatedAt = time.Now()
	s.m[key] = st
}

// TryStart atomically transitions a key to pending. Returns false when a run
// for the key is already pending or running.
func (s *MemoryStore) TryStart(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.m[key]; ok {
		if st.Status == models.StatusPending || st.Status == models.StatusRunning {
			return false
		}
	}

	s.m[key] = models.AnalysisStatus{
		Key:       key,
		Status:    models.StatusPending,
		UpdatedAt: time.Now(),
	}
	return true
}
