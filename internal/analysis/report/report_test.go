package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tracelens/internal/models"
)

func sampleInput() Input {
	return Input{
		Experiment: &models.ExperimentInfo{ExperimentID: "exp-42", Name: "sql-agent-eval"},
		Traces: []models.Trace{
			{
				Info: models.TraceInfo{TraceID: "t-1", ExecutionTimeMs: 45000, Status: "OK"},
				Data: models.TraceData{Spans: []models.Span{
					{Name: "run_query_1", SpanType: models.SpanTypeTool, StartTimeMs: 0, EndTimeMs: 6000, Status: "OK"},
				}},
			},
			{
				Info: models.TraceInfo{TraceID: "t-2", ExecutionTimeMs: 3000, Status: "ERROR"},
			},
		},
		Discovery: &models.DiscoveryResult{
			AgentUnderstanding: "A SQL assistant answering warehouse questions.",
			Issues: []models.DiscoveredIssue{
				{
					IssueType:      "critical_response_latency",
					Category:       "performance",
					Severity:       models.SeverityCritical,
					Title:          "Critical response latency",
					Description:    "1 trace(s) exceeded 30000ms.",
					AffectedTraces: 1,
					ExampleTraces:  []string{"t-1"},
				},
				{
					IssueType:          "slow_tool_run_query",
					Category:           "performance",
					Severity:           models.SeverityHigh,
					Title:              "Slow tool: run_query",
					Description:        "Tool run_query had 1 span(s) over 5000ms.",
					AffectedTraces:     1,
					ExampleTraces:      []string{"t-1"},
					EvaluationQuestion: "",
				},
				{
					IssueType:          "wrong_table",
					Severity:           models.SeverityMedium,
					Title:              "Wrong table queried",
					Description:        "The agent joined against a stale table.",
					AffectedTraces:     1,
					ExampleTraces:      []string{"t-2"},
					ProblemSnippets:    []string{"SELECT * FROM orders_v1"},
					EvaluationQuestion: "Did the agent query the correct table?",
				},
			},
		},
		Schemas: []models.LabelingSchema{
			{Key: "wrong_table", Name: "Wrong table queried", SchemaType: models.SchemaTypeCategorical, LabelType: models.LabelTypeFeedback, PriorityScore: 55, AffectedTraceCount: 1},
		},
		Generated: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestGenerateFullReport(t *testing.T) {
	md := Generate(sampleInput())

	assert.Contains(t, md, "# Experiment Analysis: sql-agent-eval")
	assert.Contains(t, md, "**Experiment ID:** exp-42")
	assert.Contains(t, md, "**Traces analyzed:** 2")
	assert.Contains(t, md, "## Agent Analysis")
	assert.Contains(t, md, "A SQL assistant answering warehouse questions.")
	assert.Contains(t, md, "Discovered **3** issue(s): 1 critical, 1 high, 1 medium, 0 low.")
	assert.Contains(t, md, "critical response latency")
	assert.Contains(t, md, "Bottleneck tool: run_query")
	assert.Contains(t, md, "| Trace count | 2 |")
	assert.Contains(t, md, "| Error traces | 1 (50.0%) |")
	assert.Contains(t, md, "| run_query | 1 | 0 | 6000 | 6000 | 1 |")
	assert.Contains(t, md, "## Proposed Labeling Schemas")
	assert.Contains(t, md, "| `wrong_table` |")
	assert.Contains(t, md, "## Recommendations")
	assert.Contains(t, md, "Profile the `run_query` tool")
}

func TestGenerateAllIssueTitlesRendered(t *testing.T) {
	md := Generate(sampleInput())

	assert.Contains(t, md, "#### Critical response latency")
	assert.Contains(t, md, "#### Slow tool: run_query")
	assert.Contains(t, md, "#### Wrong table queried")
	assert.Contains(t, md, "Evidence: `SELECT * FROM orders_v1`")
	assert.Contains(t, md, "Evaluation question: Did the agent query the correct table?")
}

func TestGenerateSeverityGrouping(t *testing.T) {
	md := Generate(sampleInput())

	critical := "### Critical"
	high := "### High"
	medium := "### Medium"
	assert.Contains(t, md, critical)
	assert.Contains(t, md, high)
	assert.Contains(t, md, medium)
	assert.Less(t, strings.Index(md, critical), strings.Index(md, high))
	assert.Less(t, strings.Index(md, high), strings.Index(md, medium))
}

func TestGenerateEmptyInputUsesPlaceholders(t *testing.T) {
	md := Generate(Input{})

	assert.Contains(t, md, "No quality issues were detected")
	assert.Contains(t, md, "No traces were available")
	assert.Contains(t, md, "No tool spans were found")
	assert.Contains(t, md, "No issues found.")
	assert.Contains(t, md, "No labeling schemas were generated.")
	assert.Contains(t, md, "Continue monitoring; no action required at this time.")
	assert.NotContains(t, md, "## Agent Analysis")
}
