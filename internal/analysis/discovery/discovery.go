// Package discovery implements the LLM-driven issue discovery stages and the
// deterministic performance checks that feed labeling-schema generation.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tracelens/internal/analysis/modeljson"
	"tracelens/internal/metrics"
	"tracelens/internal/models"
	"tracelens/pkg/llm"
)

// Sample sizes for the two sampled model stages. The mapping stage sees every
// trace, bounded by the token budget instead.
const (
	DefaultUnderstandingSample = 5
	DefaultCategorySample      = 20
)

// Discoverer runs the ordered discovery stages against a model provider.
type Discoverer struct {
	provider    llm.Provider
	thresholds  PerformanceThresholds
	tokenBudget int
	counter     *tokenCounter
	logger      *slog.Logger

	understandingSample int
	categorySample      int
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithThresholds overrides the deterministic performance thresholds.
func WithThresholds(th PerformanceThresholds) Option {
	return func(d *Discoverer) { d.thresholds = th }
}

// WithTokenBudget overrides the mapping-prompt token budget.
func WithTokenBudget(budget int) Option {
	return func(d *Discoverer) { d.tokenBudget = budget }
}

// WithSampleSizes overrides the understanding and category sample sizes.
func WithSampleSizes(understanding, category int) Option {
	return func(d *Discoverer) {
		if understanding > 0 {
			d.understandingSample = understanding
		}
		if category > 0 {
			d.categorySample = category
		}
	}
}

// New initializes a Discoverer with the given model provider.
func New(provider llm.Provider, logger *slog.Logger, opts ...Option) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Discoverer{
		provider:            provider,
		thresholds:          DefaultThresholds(),
		tokenBudget:         DefaultTokenBudget,
		counter:             newTokenCounter(),
		logger:              logger,
		understandingSample: DefaultUnderstandingSample,
		categorySample:      DefaultCategorySample,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscoverIssues runs the four ordered stages: understand the agent, run the
// deterministic performance checks, propose candidate categories, then
// exhaustively map categories to trace IDs. Model transport errors propagate;
// unparseable model output degrades that stage to an empty result.
func (d *Discoverer) DiscoverIssues(ctx context.Context, traces []models.Trace, experiment *models.ExperimentInfo) (*models.DiscoveryResult, error) {
	started := time.Now()

	understanding, err := d.understandAgent(ctx, traces, experiment)
	if err != nil {
		return nil, fmt.Errorf("agent understanding failed: %w", err)
	}

	issues := CheckPerformance(traces, d.thresholds)

	categories, err := d.discoverCategories(ctx, traces, understanding)
	if err != nil {
		return nil, fmt.Errorf("category discovery failed: %w", err)
	}

	mapped, err := d.mapIssues(ctx, traces, understanding, categories)
	if err != nil {
		return nil, fmt.Errorf("issue mapping failed: %w", err)
	}
	issues = append(issues, mapped...)

	normalizeIssues(issues, d.logger)
	sortIssues(issues)

	return &models.DiscoveryResult{
		AgentUnderstanding:   understanding,
		DiscoveredCategories: categories,
		Issues:               issues,
		Metadata: map[string]any{
			"trace_count": len(traces),
			"provider":    d.provider.Name(),
			"duration_ms": time.Since(started).Milliseconds(),
			"discovered":  len(issues),
		},
	}, nil
}

// understandAgent asks the model to describe, in prose, what kind of agent
// produced the sampled traces. The output is free text used as context for
// the later stages; no parsing is attempted.
func (d *Discoverer) understandAgent(ctx context.Context, traces []models.Trace, experiment *models.ExperimentInfo) (string, error) {
	sample := traces
	if len(sample) > d.understandingSample {
		sample = sample[:d.understandingSample]
	}

	var b strings.Builder
	for i := range sample {
		t := &sample[i]
		fmt.Fprintf(&b, "--- Example %d ---\n", i+1)
		if req := extractRequestText(t); req != "" {
			fmt.Fprintf(&b, "Request: %s\n", truncate(req, 500))
		}
		if resp := extractResponseText(t); resp != "" {
			fmt.Fprintf(&b, "Response: %s\n", truncate(resp, 500))
		}
	}

	experimentName := ""
	if experiment != nil {
		experimentName = experiment.Name
	}

	prompt := fmt.Sprintf(`You are reviewing traces from an AI agent under evaluation.

Experiment: %s

Here are example request/response pairs:

%s
In 2-4 sentences of plain prose, describe what kind of agent this is: its
domain, the tasks it performs, and what its users appear to want from it.
Do not use JSON or markdown.`, experimentName, b.String())

	metrics.LLMCalls.Inc()
	return d.provider.Analyze(ctx, prompt)
}

// categoriesPayload is the JSON the category stage asks the model for.
type categoriesPayload struct {
	DiscoveredIssueTypes []struct {
		Name               string   `json:"name"`
		Description        string   `json:"description"`
		ExampleTraceIDs    []string `json:"example_trace_ids"`
		EvaluationQuestion string   `json:"evaluation_question"`
	} `json:"discovered_issue_types"`
}

// discoverCategories proposes candidate issue categories from a sample of
// traces. Invalid JSON degrades to no categories; the pipeline continues with
// only the deterministic issues.
func (d *Discoverer) discoverCategories(ctx context.Context, traces []models.Trace, understanding string) ([]models.DiscoveredCategory, error) {
	sample := traces
	if len(sample) > d.categorySample {
		sample = sample[:d.categorySample]
	}

	var b strings.Builder
	for i := range sample {
		b.WriteString(traceDigest(&sample[i]))
		b.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are discovering quality issues in an AI agent's behavior.

AGENT CONTEXT:
%s

TRACES:
%s
Propose candidate issue categories you observe in these traces. Focus on
response quality, correctness, tool usage, and task completion, not latency.

Respond with JSON only:
{
  "discovered_issue_types": [
    {
      "name": "snake_case_issue_name",
      "description": "what the problem is",
      "example_trace_ids": ["..."],
      "evaluation_question": "a TRUE/FALSE question an expert can answer per trace"
    }
  ]
}`, understanding, b.String())

	metrics.LLMCalls.Inc()
	raw, err := d.provider.Analyze(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload categoriesPayload
	if err := modeljson.Decode(raw, &payload); err != nil {
		d.logger.Warn("Category discovery returned unparseable output, continuing without categories", "error", err)
		return nil, nil
	}

	categories := make([]models.DiscoveredCategory, 0, len(payload.DiscoveredIssueTypes))
	for _, c := range payload.DiscoveredIssueTypes {
		categories = append(categories, models.DiscoveredCategory{
			Name:               c.Name,
			Description:        c.Description,
			ExampleTraceIDs:    c.ExampleTraceIDs,
			EvaluationQuestion: c.EvaluationQuestion,
		})
	}

	return categories, nil
}

// issuesPayload is the JSON the mapping stage asks the model for.
type issuesPayload struct {
	Issues []struct {
		IssueType           string   `json:"issue_type"`
		Severity            string   `json:"severity"`
		Title               string   `json:"title"`
		Description         string   `json:"description"`
		AffectedTraces      int      `json:"affected_traces"`
		AllTraceIDs         []string `json:"all_trace_ids"`
		ProblemSnippets     []string `json:"problem_snippets"`
		RequiresFeedback    *bool    `json:"requires_feedback"`
		RequiresExpectation bool     `json:"requires_expectation"`
		EvaluationQuestion  string   `json:"evaluation_question"`
	} `json:"issues"`
}

// mapIssues sends every trace (as a bounded digest) plus the candidate
// categories back to the model, instructing it to enumerate the complete list
// of affected trace IDs per issue. New categories the sampling stage missed
// may also surface here.
func (d *Discoverer) mapIssues(ctx context.Context, traces []models.Trace, understanding string, categories []models.DiscoveredCategory) ([]models.DiscoveredIssue, error) {
	digests, included := buildDigests(traces, d.tokenBudget, d.counter)
	if included < len(traces) {
		d.logger.Warn("Token budget truncated trace digests", "included", included, "total", len(traces))
	}

	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, "- %s: %s (question: %s)\n", c.Name, c.Description, c.EvaluationQuestion)
	}
	if cats.Len() == 0 {
		cats.WriteString("(none proposed so far; discover them yourself)\n")
	}

	prompt := fmt.Sprintf(`You are exhaustively mapping quality issues to traces.

AGENT CONTEXT:
%s

CANDIDATE ISSUE CATEGORIES:
%s
ALL TRACES:
%s
For EVERY issue category, list the COMPLETE set of affected trace IDs, not
just examples, with an exact count. You may add issue categories that were
missed. Use severity critical, high, medium, or low.

Respond with JSON only:
{
  "issues": [
    {
      "issue_type": "snake_case_name",
      "severity": "high",
      "title": "short title",
      "description": "what is wrong",
      "affected_traces": 3,
      "all_trace_ids": ["...", "...", "..."],
      "problem_snippets": ["verbatim evidence"],
      "requires_feedback": true,
      "requires_expectation": false,
      "evaluation_question": "TRUE/FALSE question"
    }
  ]
}`, understanding, cats.String(), digests)

	metrics.LLMCalls.Inc()
	raw, err := d.provider.Analyze(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload issuesPayload
	if err := modeljson.Decode(raw, &payload); err != nil {
		d.logger.Warn("Issue mapping returned unparseable output, continuing without mapped issues", "error", err)
		return nil, nil
	}

	issues := make([]models.DiscoveredIssue, 0, len(payload.Issues))
	for _, i := range payload.Issues {
		requiresFeedback := true
		if i.RequiresFeedback != nil {
			requiresFeedback = *i.RequiresFeedback
		}
		issues = append(issues, models.DiscoveredIssue{
			IssueType:           i.IssueType,
			Severity:            parseSeverity(i.Severity),
			Title:               i.Title,
			Description:         i.Description,
			AffectedTraces:      i.AffectedTraces,
			AllTraceIDs:         i.AllTraceIDs,
			ProblemSnippets:     i.ProblemSnippets,
			RequiresFeedback:    requiresFeedback,
			RequiresExpectation: i.RequiresExpectation,
			EvaluationQuestion:  i.EvaluationQuestion,
		})
	}

	return issues, nil
}

// normalizeIssues reconciles model-reported counts with the actual ID lists.
// The actual list wins; after this pass AffectedTraces == len(AllTraceIDs)
// holds for every issue, and ExampleTraces holds the first five IDs.
func normalizeIssues(issues []models.DiscoveredIssue, logger *slog.Logger) {
	for i := range issues {
		issue := &issues[i]
		if issue.AffectedTraces != len(issue.AllTraceIDs) {
			logger.Warn("Model-reported trace count disagrees with ID list, trusting the list",
				"issueType", issue.IssueType,
				"reported", issue.AffectedTraces,
				"actual", len(issue.AllTraceIDs))
			issue.AffectedTraces = len(issue.AllTraceIDs)
		}
		if len(issue.ExampleTraces) == 0 {
			issue.ExampleTraces = firstN(issue.AllTraceIDs, 5)
		}
	}
}

// sortIssues orders by severity rank, then affected-trace volume, descending.
func sortIssues(issues []models.DiscoveredIssue) {
	sort.SliceStable(issues, func(a, b int) bool {
		ra, rb := issues[a].Severity.Rank(), issues[b].Severity.Rank()
		if ra != rb {
			return ra > rb
		}
		return issues[a].AffectedTraces > issues[b].AffectedTraces
	})
}

func parseSeverity(s string) models.Severity {
	switch models.Severity(strings.ToLower(s)) {
	case models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
		return models.Severity(strings.ToLower(s))
	}
	return models.SeverityMedium
}
