package status

import (
	"log/slog"
	"sync"
	"time"

	"tracelens/internal/db"
	"tracelens/internal/models"
)

// SQLiteStore persists status rows so polls survive a process restart. The
// mutex still serializes TryStart check-and-set; SQLite only provides
// durability, not the per-key exclusivity contract.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *db.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a status store backed by the given database.
func NewSQLiteStore(database *db.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:     database,
		logger: logger,
	}
}

// Get returns the latest status for a key.
func (s *SQLiteStore) Get(key string) (models.AnalysisStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

func (s *SQLiteStore) get(key string) (models.AnalysisStatus, bool) {
	row := s.db.QueryRow(`SELECT key, status, COALESCE(message, ''), updated_at FROM analysis_status WHERE key = ?`, key)

	var st models.AnalysisStatus
	if err := row.Scan(&st.Key, &st.Status, &st.Message, &st.UpdatedAt); err != nil {
		return models.AnalysisStatus{}, false
	}
	return st, true
}

// Set records the status for a key, stamping the update time.
func (s *SQLiteStore) Set(key string, st models.AnalysisStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, st)
}

func (s *SQLiteStore) set(key string, st models.AnalysisStatus) {
	_, err := s.db.Exec(
		`INSERT INTO analysis_status (key, status, message, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET status = excluded.status, message = excluded.message, updated_at = excluded.updated_at`,
		key, st.Status, st.Message, time.Now(),
	)
	if err != nil {
		s.logger.Error("Failed to persist analysis status", "key", key, "error", err)
	}
}

// TryStart atomically transitions a key to pending. Returns false when a run
// for the key is already pending or running.
func (s *SQLiteStore) TryStart(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.get(key); ok {
		if st.Status == models.StatusPending || st.Status == models.StatusRunning {
			return false
		}
	}

	s.set(key, models.AnalysisStatus{Key: key, Status: models.StatusPending})
	return true
}
