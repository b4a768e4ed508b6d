// Package db provides structured access and database migrations for the SQLite
// persistence layer.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:   db,
		path: dbPath,
	}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		// Analysis run history
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			report_path TEXT,
			data_path TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		// Latest status per analysis key
		`CREATE TABLE IF NOT EXISTS analysis_status (
			key TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			message TEXT,
			updated_at DATETIME NOT NULL
		)`,
		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_analyses_scope ON analyses(scope, scope_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// AnalysisRecord is one row of analysis history.
type AnalysisRecord struct {
	ID         string
	Scope      string
	ScopeID    string
	Status     string
	Error      string
	ReportPath string
	DataPath   string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// InsertAnalysis records the start of an analysis run.
func (db *DB) InsertAnalysis(rec AnalysisRecord) error {
	_, err := db.Exec(
		`INSERT INTO analyses (id, scope, scope_id, status) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Scope, rec.ScopeID, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// FinishAnalysis records the terminal state of an analysis run.
func (db *DB) FinishAnalysis(id, status, errMsg, reportPath, dataPath string) error {
	_, err := db.Exec(
		`UPDATE analyses SET status = ?, error = ?, report_path = ?, data_path = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errMsg, reportPath, dataPath, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the most recent analysis runs for a scope ID.
func (db *DB) ListAnalyses(scope, scopeID string, limit int) ([]AnalysisRecord, error) {
	rows, err := db.Query(
		`SELECT id, scope, scope_id, status, COALESCE(error, ''), COALESCE(report_path, ''), COALESCE(data_path, ''), created_at
		 FROM analyses WHERE scope = ? AND scope_id = ? ORDER BY created_at DESC LIMIT ?`,
		scope, scopeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var records []AnalysisRecord
	for rows.Next() {
		var rec AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.Scope, &rec.ScopeID, &rec.Status, &rec.Error, &rec.ReportPath, &rec.DataPath, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
