package output

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadExperimentReport(t *testing.T) {
	dir := t.TempDir()
	w := NewMarkdownWriter(filepath.Join(dir, "reports"))

	err := w.WriteExperimentReport("exp-1", "# summary")
	require.NoError(t, err)

	content, err := w.ReadExperimentReport("exp-1")
	require.NoError(t, err)
	assert.Equal(t, "# summary", content)

	assert.FileExists(t, filepath.Join(dir, "reports", "exp-1_summary.md"))
}

func TestReadExperimentReportMissing(t *testing.T) {
	w := NewMarkdownWriter(t.TempDir())

	_, err := w.ReadExperimentReport("exp-404")
	assert.Error(t, err)
}

func TestWriteOverwritesExisting(t *testing.T) {
	w := NewMarkdownWriter(t.TempDir())

	require.NoError(t, w.WriteExperimentReport("exp-1", "old"))
	require.NoError(t, w.WriteExperimentReport("exp-1", "new"))

	content, err := w.ReadExperimentReport("exp-1")
	require.NoError(t, err)
	assert.Equal(t, "new", content)
}
