package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tracelens/internal/analysis/modeljson"
	"tracelens/internal/clients/mlflow"
	"tracelens/internal/metrics"
	"tracelens/internal/models"
	"tracelens/pkg/llm"
)

// ArtifactSink persists session analysis blobs under an existing run.
type ArtifactSink interface {
	LogAnalysisReport(ctx context.Context, runID, artifactPath, markdown string) error
	LogStructuredAnalysis(ctx context.Context, runID, artifactPath string, payload interface{}) error
}

// Analyzer runs the labeling-session pipeline: deterministic per-schema
// statistics, LLM critical-issue discovery grounded in low-scoring items,
// and a final recommendation stage.
type Analyzer struct {
	provider  llm.Provider
	artifacts ArtifactSink
	logger    *slog.Logger
}

// NewAnalyzer wires a session analyzer. artifacts may be nil when storage is
// not configured.
func NewAnalyzer(provider llm.Provider, artifacts ArtifactSink, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		provider:  provider,
		artifacts: artifacts,
		logger:    logger,
	}
}

// AnalyzeSession runs the full session pipeline. Every error is caught at
// this boundary and converted to a status "error" result.
func (a *Analyzer) AnalyzeSession(ctx context.Context, sess *models.LabelingSession) *models.SessionAnalysisResult {
	result, err := a.analyze(ctx, sess)
	if err != nil {
		a.logger.Error("Session analysis failed", "sessionID", sess.SessionID, "error", err)
		metrics.AnalysesFailed.Inc()
		return &models.SessionAnalysisResult{
			Status:    "error",
			Error:     err.Error(),
			SessionID: sess.SessionID,
		}
	}
	metrics.AnalysesCompleted.Inc()
	return result
}

func (a *Analyzer) analyze(ctx context.Context, sess *models.LabelingSession) (*models.SessionAnalysisResult, error) {
	started := time.Now()

	// 1. Deterministic statistics over completed labels
	stats := ComputeStats(sess)

	// 2. Understand the evaluation context
	understanding, err := a.understandContext(ctx, sess, stats)
	if err != nil {
		return nil, fmt.Errorf("evaluation context failed: %w", err)
	}

	// 3. Discover critical issues grounded in low-scoring items
	issues, err := a.discoverCriticalIssues(ctx, sess, stats, understanding)
	if err != nil {
		return nil, fmt.Errorf("critical issue discovery failed: %w", err)
	}

	// 4. Recommendations
	recs, err := a.recommend(ctx, sess, stats, issues, understanding)
	if err != nil {
		return nil, fmt.Errorf("recommendation stage failed: %w", err)
	}

	result := &models.SessionAnalysisResult{
		Status:          "completed",
		SessionID:       sess.SessionID,
		ExperimentID:    sess.ExperimentID,
		Stats:           stats,
		CriticalIssues:  issues,
		Recommendations: recs,
	}
	result.Content = renderMarkdown(sess, result, started)

	// 5. Persist to the session's own run when one exists. A missing run ID
	// skips storage with a warning, not an error.
	if sess.MLflowRunID == "" {
		a.logger.Warn("Labeling session has no MLflow run, skipping artifact storage", "sessionID", sess.SessionID)
		return result, nil
	}
	if a.artifacts == nil {
		return result, nil
	}

	if err := a.artifacts.LogAnalysisReport(ctx, sess.MLflowRunID, mlflow.SessionReportPath, result.Content); err != nil {
		return nil, err
	}
	if err := a.artifacts.LogStructuredAnalysis(ctx, sess.MLflowRunID, mlflow.SessionDataPath, result); err != nil {
		return nil, err
	}
	result.Storage = &models.StorageInfo{
		RunID:      sess.MLflowRunID,
		ReportPath: mlflow.SessionReportPath,
		DataPath:   mlflow.SessionDataPath,
	}

	return result, nil
}

// understandContext asks the model to describe what this session evaluates.
// Free prose, used as context for the later stages.
func (a *Analyzer) understandContext(ctx context.Context, sess *models.LabelingSession, stats []models.SchemaStats) (string, error) {
	prompt := fmt.Sprintf(`You are reviewing a human labeling session for an AI agent.

Session: %s
Schemas being judged:
%s
Aggregate statistics:
%s
In 2-4 sentences of plain prose, describe what is being evaluated in this
session and what the labels suggest about overall quality. No JSON.`,
		sess.Name, formatSchemas(sess.Schemas), formatStats(stats))

	metrics.LLMCalls.Inc()
	return a.provider.Analyze(ctx, prompt)
}

// criticalIssuesPayload is the JSON the issue stage asks the model for.
type criticalIssuesPayload struct {
	Issues []struct {
		IssueType      string   `json:"issue_type"`
		Severity       string   `json:"severity"`
		Title          string   `json:"title"`
		Description    string   `json:"description"`
		AffectedTraces []string `json:"affected_trace_ids"`
	} `json:"issues"`
}

// discoverCriticalIssues grounds issue discovery in the low-scoring items and
// negative labels. Unparseable output degrades to no issues.
func (a *Analyzer) discoverCriticalIssues(ctx context.Context, sess *models.LabelingSession, stats []models.SchemaStats, understanding string) ([]models.DiscoveredIssue, error) {
	var low strings.Builder
	for _, st := range stats {
		if len(st.LowScoreIDs) == 0 {
			continue
		}
		fmt.Fprintf(&low, "- schema %s: low-scoring traces %s\n", st.SchemaKey, strings.Join(st.LowScoreIDs, ", "))
	}
	if low.Len() == 0 {
		// Nothing scored poorly; no grounding exists for critical issues.
		return nil, nil
	}

	var comments strings.Builder
	for _, item := range sess.Items {
		if item.State == models.ItemStateCompleted && item.Comment != "" {
			fmt.Fprintf(&comments, "- %s: %s\n", item.TraceID, item.Comment)
		}
	}

	prompt := fmt.Sprintf(`You are identifying critical quality issues from human evaluation results.

EVALUATION CONTEXT:
%s

LOW-SCORING ITEMS BY SCHEMA:
%s
SME COMMENTS:
%s
Identify the critical issues these low scores point to. Ground every issue in
the trace IDs above. Use severity critical, high, medium, or low.

Respond with JSON only:
{
  "issues": [
    {
      "issue_type": "snake_case_name",
      "severity": "critical",
      "title": "short title",
      "description": "what the labels reveal",
      "affected_trace_ids": ["..."]
    }
  ]
}`, understanding, low.String(), comments.String())

	metrics.LLMCalls.Inc()
	raw, err := a.provider.Analyze(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload criticalIssuesPayload
	if err := modeljson.Decode(raw, &payload); err != nil {
		a.logger.Warn("Critical-issue stage returned unparseable output, continuing without issues", "error", err)
		return nil, nil
	}

	issues := make([]models.DiscoveredIssue, 0, len(payload.Issues))
	for _, i := range payload.Issues {
		issues = append(issues, models.DiscoveredIssue{
			IssueType:        i.IssueType,
			Severity:         parseSeverity(i.Severity),
			Title:            i.Title,
			Description:      i.Description,
			AffectedTraces:   len(i.AffectedTraces),
			AllTraceIDs:      i.AffectedTraces,
			ExampleTraces:    firstN(i.AffectedTraces, 5),
			RequiresFeedback: true,
		})
	}

	return issues, nil
}

// recommendationsPayload is the JSON the final stage asks the model for.
type recommendationsPayload struct {
	Recommendations []string `json:"recommendations"`
}

func (a *Analyzer) recommend(ctx context.Context, sess *models.LabelingSession, stats []models.SchemaStats, issues []models.DiscoveredIssue, understanding string) ([]string, error) {
	var issueLines strings.Builder
	for _, i := range issues {
		fmt.Fprintf(&issueLines, "- [%s] %s: %s\n", i.Severity, i.Title, i.Description)
	}
	if issueLines.Len() == 0 {
		issueLines.WriteString("(no critical issues found)\n")
	}

	prompt := fmt.Sprintf(`You are advising the team that owns an AI agent under human evaluation.

EVALUATION CONTEXT:
%s

STATISTICS:
%s
CRITICAL ISSUES:
%s
Give 3-5 concrete, prioritized recommendations for improving the agent.

Respond with JSON only:
{"recommendations": ["...", "..."]}`,
		understanding, formatStats(stats), issueLines.String())

	metrics.LLMCalls.Inc()
	raw, err := a.provider.Analyze(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload recommendationsPayload
	if err := modeljson.Decode(raw, &payload); err != nil {
		a.logger.Warn("Recommendation stage returned unparseable output, continuing without recommendations", "error", err)
		return nil, nil
	}

	return payload.Recommendations, nil
}

func formatSchemas(schemas []models.LabelingSchema) string {
	var b strings.Builder
	for _, s := range schemas {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", s.Key, s.SchemaType, s.LabelType, s.Description)
	}
	if b.Len() == 0 {
		b.WriteString("(none)\n")
	}
	return b.String()
}

func formatStats(stats []models.SchemaStats) string {
	var b strings.Builder
	for _, st := range stats {
		switch st.SchemaType {
		case models.SchemaTypeNumerical:
			fmt.Fprintf(&b, "- %s: n=%d mean=%.2f median=%.2f stddev=%.2f low=%d\n",
				st.SchemaKey, st.SampleCount, st.Mean, st.Median, st.StdDev, len(st.LowScoreIDs))
		case models.SchemaTypeCategorical:
			dist, _ := json.Marshal(st.Distribution)
			fmt.Fprintf(&b, "- %s: n=%d distribution=%s\n", st.SchemaKey, st.SampleCount, dist)
		case models.SchemaTypeText:
			themes, _ := json.Marshal(st.Themes)
			fmt.Fprintf(&b, "- %s: n=%d themes=%s\n", st.SchemaKey, st.SampleCount, themes)
		}
	}
	if b.Len() == 0 {
		b.WriteString("(no completed labels)\n")
	}
	return b.String()
}

func renderMarkdown(sess *models.LabelingSession, result *models.SessionAnalysisResult, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Labeling Session Analysis: %s\n\n", sess.Name)
	fmt.Fprintf(&b, "**Session ID:** %s  \n", sess.SessionID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", generated.UTC().Format(time.RFC3339))

	b.WriteString("## Schema Statistics\n\n")
	b.WriteString(formatStats(result.Stats))
	b.WriteString("\n")

	b.WriteString("## Critical Issues\n\n")
	if len(result.CriticalIssues) == 0 {
		b.WriteString("No critical issues found.\n")
	}
	for _, i := range result.CriticalIssues {
		fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n- Affected traces: %s\n\n",
			i.Title, i.Severity, i.Description, strings.Join(i.AllTraceIDs, ", "))
	}
	b.WriteString("\n## Recommendations\n\n")
	if len(result.Recommendations) == 0 {
		b.WriteString("None.\n")
	}
	for i, r := range result.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	return b.String()
}

func parseSeverity(s string) models.Severity {
	switch models.Severity(strings.ToLower(s)) {
	case models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
		return models.Severity(strings.ToLower(s))
	}
	return models.SeverityMedium
}

func firstN(ids []string, n int) []string {
	if len(ids) <= n {
		out := make([]string, len(ids))
		copy(out, ids)
		return out
	}
	out := make([]string, n)
	copy(out, ids[:n])
	return out
}
