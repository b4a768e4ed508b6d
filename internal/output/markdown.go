// Package output writes locally stored markdown report copies, the legacy
// fallback read path for experiment summaries.
package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// MarkdownWriter persists experiment reports under a local directory.
type MarkdownWriter struct {
	dir string
}

// NewMarkdownWriter creates a writer rooted at the given directory.
func NewMarkdownWriter(dir string) *MarkdownWriter {
	if dir == "" {
		dir = "reports/experiments"
	}
	return &MarkdownWriter{dir: dir}
}

func (w *MarkdownWriter) reportPath(experimentID string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_summary.md", experimentID))
}

// WriteExperimentReport writes the markdown report for an experiment.
func (w *MarkdownWriter) WriteExperimentReport(experimentID, content string) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	if err := os.WriteFile(w.reportPath(experimentID), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadExperimentReport reads a previously written report, if any.
func (w *MarkdownWriter) ReadExperimentReport(experimentID string) (string, error) {
	data, err := os.ReadFile(w.reportPath(experimentID))
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}
