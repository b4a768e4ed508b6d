package mlflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// MetadataRunName tags the single run per experiment that accumulates
// analysis artifacts across reruns.
const MetadataRunName = "experiment_metadata"

// Artifact paths. The summary fallback read depends on these exactly.
const (
	experimentReportPathFmt = "analysis/experiment_summaries/%s_summary.md"
	experimentDataPathFmt   = "analysis/experiment_summaries/%s_analysis_data.json"
	SessionReportPath       = "analysis/session_summary/report.md"
	SessionDataPath         = "analysis/session_summary/data.json"
)

// ExperimentReportPath returns the artifact path of an experiment's markdown report.
func ExperimentReportPath(experimentID string) string {
	return fmt.Sprintf(experimentReportPathFmt, experimentID)
}

// ExperimentDataPath returns the artifact path of an experiment's structured data.
func ExperimentDataPath(experimentID string) string {
	return fmt.Sprintf(experimentDataPathFmt, experimentID)
}

// ArtifactManager persists and retrieves analysis blobs as MLflow run artifacts.
type ArtifactManager struct {
	client *Client
	logger *slog.Logger
}

// NewArtifactManager creates a new artifact manager over an MLflow client.
func NewArtifactManager(client *Client, logger *slog.Logger) *ArtifactManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactManager{
		client: client,
		logger: logger,
	}
}

// FindAnalysisRun returns the metadata run of an experiment, or "" when none
// exists. Read paths use this so a lookup never creates a run.
func (m *ArtifactManager) FindAnalysisRun(ctx context.Context, experimentID string) (string, error) {
	filter := fmt.Sprintf("tags.mlflow.runName = '%s'", MetadataRunName)
	runs, err := m.client.SearchRuns(ctx, experimentID, filter, 1)
	if err != nil {
		return "", fmt.Errorf("failed to search for metadata run: %w", err)
	}
	if len(runs) == 0 {
		return "", nil
	}
	return runs[0].RunID, nil
}

// GetOrCreateAnalysisRun returns the metadata run of an experiment, creating
// it on first use so reruns accumulate artifact versions under one run.
func (m *ArtifactManager) GetOrCreateAnalysisRun(ctx context.Context, experimentID string) (string, error) {
	runID, err := m.FindAnalysisRun(ctx, experimentID)
	if err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}

	m.logger.Info("Creating metadata run", "experimentID", experimentID)
	run, err := m.client.CreateRun(ctx, experimentID, MetadataRunName, map[string]string{
		"tracelens.purpose": "analysis_artifacts",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create metadata run: %w", err)
	}

	return run.RunID, nil
}

// LogAnalysisReport stores a markdown report under the run.
func (m *ArtifactManager) LogAnalysisReport(ctx context.Context, runID, artifactPath, markdown string) error {
	if err := m.client.UploadArtifact(ctx, runID, artifactPath, []byte(markdown)); err != nil {
		return fmt.Errorf("failed to log analysis report: %w", err)
	}
	return nil
}

// LogStructuredAnalysis stores a JSON-serializable payload under the run.
func (m *ArtifactManager) LogStructuredAnalysis(ctx context.Context, runID, artifactPath string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal analysis payload: %w", err)
	}
	if err := m.client.UploadArtifact(ctx, runID, artifactPath, data); err != nil {
		return fmt.Errorf("failed to log structured analysis: %w", err)
	}
	return nil
}

// DownloadAnalysisReport retrieves a previously stored text artifact.
func (m *ArtifactManager) DownloadAnalysisReport(ctx context.Context, runID, artifactPath string) (string, error) {
	data, err := m.client.DownloadArtifact(ctx, runID, artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to download analysis artifact: %w", err)
	}
	return string(data), nil
}
