// Package analysis orchestrates the experiment analysis pipeline: fetch
// traces, discover issues, generate labeling schemas, render the report, and
// persist everything as MLflow run artifacts.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tracelens/internal/analysis/discovery"
	"tracelens/internal/analysis/report"
	"tracelens/internal/analysis/schemagen"
	"tracelens/internal/clients/mlflow"
	"tracelens/internal/metrics"
	"tracelens/internal/models"
	"tracelens/internal/status"
)

// DefaultTraceSampleSize bounds how many traces one analysis run fetches.
const DefaultTraceSampleSize = 50

// TraceSource provides read access to the tracing backend.
type TraceSource interface {
	SearchTraces(ctx context.Context, experimentID string, maxResults int) ([]models.Trace, error)
	GetExperiment(ctx context.Context, experimentID string) (*models.ExperimentInfo, error)
}

// ArtifactStore persists and retrieves named text/JSON blobs scoped to a run.
type ArtifactStore interface {
	GetOrCreateAnalysisRun(ctx context.Context, experimentID string) (string, error)
	FindAnalysisRun(ctx context.Context, experimentID string) (string, error)
	LogAnalysisReport(ctx context.Context, runID, artifactPath, markdown string) error
	LogStructuredAnalysis(ctx context.Context, runID, artifactPath string, payload interface{}) error
	DownloadAnalysisReport(ctx context.Context, runID, artifactPath string) (string, error)
}

// LocalReports writes and reads the legacy local markdown report files.
type LocalReports interface {
	WriteExperimentReport(experimentID, content string) error
	ReadExperimentReport(experimentID string) (string, error)
}

// History records analysis runs for later listing. Optional.
type History interface {
	InsertAnalysis(rec HistoryRecord) error
	FinishAnalysis(id, status, errMsg, reportPath, dataPath string) error
}

// HistoryRecord is the start-of-run history row.
type HistoryRecord struct {
	ID      string
	Scope   string
	ScopeID string
	Status  string
}

// Analyzer sequences the pipeline components for one experiment.
type Analyzer struct {
	traces     TraceSource
	discoverer *discovery.Discoverer
	artifacts  ArtifactStore
	local      LocalReports
	history    History
	statuses   status.Store
	logger     *slog.Logger

	sampleSize int
	maxSchemas int
}

// NewAnalyzer wires an Analyzer from its collaborators. local and history may
// be nil; both are optional side channels.
func NewAnalyzer(traces TraceSource, disc *discovery.Discoverer, artifacts ArtifactStore, statuses status.Store, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		traces:     traces,
		discoverer: disc,
		artifacts:  artifacts,
		statuses:   statuses,
		logger:     logger,
		sampleSize: DefaultTraceSampleSize,
	}
}

// WithLocalReports attaches the legacy local report writer.
func (a *Analyzer) WithLocalReports(local LocalReports) *Analyzer {
	a.local = local
	return a
}

// WithHistory attaches the analysis history recorder.
func (a *Analyzer) WithHistory(h History) *Analyzer {
	a.history = h
	return a
}

// WithSampleSize overrides the default trace sample size.
func (a *Analyzer) WithSampleSize(n int) *Analyzer {
	if n > 0 {
		a.sampleSize = n
	}
	return a
}

// WithMaxSchemas overrides the generated-schema cap.
func (a *Analyzer) WithMaxSchemas(n int) *Analyzer {
	if n > 0 {
		a.maxSchemas = n
	}
	return a
}

// AnalyzeExperiment runs the full linear pipeline. Every error anywhere in
// the chain is caught here and converted into a status "error" result;
// partial results from earlier steps are discarded.
func (a *Analyzer) AnalyzeExperiment(ctx context.Context, experimentID, focus string, sampleSize int) *models.AnalysisResult {
	started := time.Now()
	defer func() {
		metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	}()

	result, err := a.analyze(ctx, experimentID, focus, sampleSize)
	if err != nil {
		a.logger.Error("Experiment analysis failed", "experimentID", experimentID, "error", err)
		metrics.AnalysesFailed.Inc()
		return &models.AnalysisResult{
			Status:       "error",
			Error:        err.Error(),
			ExperimentID: experimentID,
		}
	}
	metrics.AnalysesCompleted.Inc()
	return result
}

func (a *Analyzer) analyze(ctx context.Context, experimentID, focus string, sampleSize int) (*models.AnalysisResult, error) {
	if sampleSize <= 0 {
		sampleSize = a.sampleSize
	}
	started := time.Now()

	// 1. Gather data
	experiment, err := a.traces.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch experiment: %w", err)
	}

	traces, err := a.traces.SearchTraces(ctx, experimentID, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch traces: %w", err)
	}
	if len(traces) == 0 {
		return nil, fmt.Errorf("no traces found for experiment %s", experimentID)
	}

	// 2. Discover issues
	disc, err := a.discoverer.DiscoverIssues(ctx, traces, experiment)
	if err != nil {
		return nil, err
	}

	// 3. Generate labeling schemas
	schemas := schemagen.GenerateSchemas(disc.Issues, disc.AgentUnderstanding, a.maxSchemas)

	// 4. Render report
	markdown := report.Generate(report.Input{
		Experiment: experiment,
		Traces:     traces,
		Discovery:  disc,
		Schemas:    schemas,
		Generated:  started,
	})

	// 5. Structure response
	result := &models.AnalysisResult{
		Status:               "completed",
		ExperimentID:         experimentID,
		ExecutiveSummary:     disc.AgentUnderstanding,
		Content:              markdown,
		RawAgentAnalysis:     disc.AgentUnderstanding,
		DetectedIssues:       disc.Issues,
		SchemasWithLabelType: schemas,
		Metadata: map[string]any{
			"analysis_id":     uuid.New().String(),
			"focus":           focus,
			"trace_count":     len(traces),
			"experiment_name": experiment.Name,
			"duration_ms":     time.Since(started).Milliseconds(),
			"generated_at":    started.UTC().Format(time.RFC3339),
		},
	}

	// 6. Persist artifacts
	storage, err := a.store(ctx, experimentID, markdown, result)
	if err != nil {
		return nil, err
	}
	result.Storage = storage

	if a.local != nil {
		if err := a.local.WriteExperimentReport(experimentID, markdown); err != nil {
			// Local copies are a convenience, not part of the contract.
			a.logger.Warn("Failed to write local report copy", "experimentID", experimentID, "error", err)
		}
	}

	return result, nil
}

// store persists the markdown report and the structured payload under the
// experiment's single metadata run.
func (a *Analyzer) store(ctx context.Context, experimentID, markdown string, result *models.AnalysisResult) (*models.StorageInfo, error) {
	runID, err := a.artifacts.GetOrCreateAnalysisRun(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve metadata run: %w", err)
	}

	reportPath := mlflow.ExperimentReportPath(experimentID)
	dataPath := mlflow.ExperimentDataPath(experimentID)

	if err := a.artifacts.LogAnalysisReport(ctx, runID, reportPath, markdown); err != nil {
		return nil, err
	}
	if err := a.artifacts.LogStructuredAnalysis(ctx, runID, dataPath, result); err != nil {
		return nil, err
	}

	return &models.StorageInfo{
		RunID:      runID,
		ReportPath: reportPath,
		DataPath:   dataPath,
	}, nil
}

// RunAsync executes the analysis in the calling goroutine while maintaining
// the status store and history; handlers call it from a goroutine after
// TryStart succeeded.
func (a *Analyzer) RunAsync(ctx context.Context, experimentID, focus string, sampleSize int) {
	analysisID := uuid.New().String()
	metrics.AnalysesStarted.Inc()

	a.statuses.Set(experimentID, models.AnalysisStatus{ID: analysisID, Status: models.StatusRunning})
	if a.history != nil {
		if err := a.history.InsertAnalysis(HistoryRecord{ID: analysisID, Scope: "experiment", ScopeID: experimentID, Status: models.StatusRunning}); err != nil {
			a.logger.Warn("Failed to record analysis start", "error", err)
		}
	}

	result := a.AnalyzeExperiment(ctx, experimentID, focus, sampleSize)

	if result.Status == "error" {
		a.statuses.Set(experimentID, models.AnalysisStatus{ID: analysisID, Status: models.StatusFailed, Message: result.Error})
		if a.history != nil {
			_ = a.history.FinishAnalysis(analysisID, models.StatusFailed, result.Error, "", "")
		}
		return
	}

	a.statuses.Set(experimentID, models.AnalysisStatus{ID: analysisID, Status: models.StatusCompleted})
	if a.history != nil {
		reportPath, dataPath := "", ""
		if result.Storage != nil {
			reportPath, dataPath = result.Storage.ReportPath, result.Storage.DataPath
		}
		_ = a.history.FinishAnalysis(analysisID, models.StatusCompleted, "", reportPath, dataPath)
	}
}

// Summary is the stored-analysis view returned to clients.
type Summary struct {
	HasSummary           bool                     `json:"has_summary"`
	Content              string                   `json:"content,omitempty"`
	SchemasWithLabelType []models.LabelingSchema  `json:"schemas_with_label_types,omitempty"`
	DetectedIssues       []models.DiscoveredIssue `json:"detected_issues,omitempty"`
	Metadata             map[string]any           `json:"metadata,omitempty"`
}

// GetSummary returns the latest stored analysis for an experiment, falling
// back to the legacy local markdown file when MLflow has none. Reads are
// side-effect free: no metadata run is created for experiments that were
// never analyzed.
func (a *Analyzer) GetSummary(ctx context.Context, experimentID string) (*Summary, error) {
	runID, err := a.artifacts.FindAnalysisRun(ctx, experimentID)
	if err == nil && runID != "" {
		data, derr := a.artifacts.DownloadAnalysisReport(ctx, runID, mlflow.ExperimentDataPath(experimentID))
		if derr == nil {
			var stored models.AnalysisResult
			if perr := decodeStored(data, &stored); perr == nil {
				return &Summary{
					HasSummary:           true,
					Content:              stored.Content,
					SchemasWithLabelType: stored.SchemasWithLabelType,
					DetectedIssues:       stored.DetectedIssues,
					Metadata:             stored.Metadata,
				}, nil
			}
		}
		a.logger.Info("No stored analysis in MLflow, trying local fallback", "experimentID", experimentID)
	}

	if a.local != nil {
		content, lerr := a.local.ReadExperimentReport(experimentID)
		if lerr == nil && content != "" {
			return &Summary{
				HasSummary: true,
				Content:    content,
				Metadata:   map[string]any{"source": "local_fallback"},
			}, nil
		}
	}

	return &Summary{HasSummary: false}, nil
}
