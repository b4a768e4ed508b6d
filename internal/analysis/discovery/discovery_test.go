package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracelens/internal/models"
)

// scriptedProvider returns canned responses in call order.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Analyze(ctx context.Context, prompt string) (string, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return "", p.errs[idx]
	}
	if idx < len(p.responses) {
		return p.responses[idx], nil
	}
	return "", nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func TestDiscoverIssuesFullPipeline(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{
			"This is a SQL assistant for a data warehouse.",
			`{"discovered_issue_types": [{"name": "wrong_table", "description": "queried wrong table", "example_trace_ids": ["t-1"], "evaluation_question": "Did the agent query the right table?"}]}`,
			`{"issues": [{"issue_type": "wrong_table", "severity": "high", "title": "Wrong table queried", "description": "agent picked the wrong table", "affected_traces": 2, "all_trace_ids": ["t-1", "t-2"], "requires_feedback": true, "evaluation_question": "Did the agent query the right table?"}]}`,
		},
	}

	traces := []models.Trace{
		makeTrace("t-1", 45000),
		makeTrace("t-2", 2000),
	}

	d := New(provider, nil)
	result, err := d.DiscoverIssues(context.Background(), traces, &models.ExperimentInfo{Name: "sql-agent"})
	require.NoError(t, err)

	assert.Equal(t, "This is a SQL assistant for a data warehouse.", result.AgentUnderstanding)
	require.Len(t, result.DiscoveredCategories, 1)
	assert.Equal(t, "wrong_table", result.DiscoveredCategories[0].Name)

	// One deterministic latency issue plus one mapped issue, sorted by severity.
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "critical_response_latency", result.Issues[0].IssueType)
	assert.Equal(t, "wrong_table", result.Issues[1].IssueType)
	assert.True(t, result.Issues[1].RequiresFeedback)
	assert.Equal(t, []string{"t-1", "t-2"}, result.Issues[1].ExampleTraces)
}

func TestDiscoverIssuesCountMismatchTrustsIDList(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{
			"A support agent.",
			`{"discovered_issue_types": []}`,
			`{"issues": [{"issue_type": "vague_answer", "severity": "medium", "title": "Vague answer", "description": "answer lacks detail", "affected_traces": 10, "all_trace_ids": ["t-1", "t-2", "t-3"]}]}`,
		},
	}

	d := New(provider, nil)
	result, err := d.DiscoverIssues(context.Background(), []models.Trace{makeTrace("t-1", 100)}, nil)
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, 3, result.Issues[0].AffectedTraces)
	assert.Len(t, result.Issues[0].AllTraceIDs, 3)
}

func TestDiscoverIssuesUnparseableStagesDegrade(t *testing.T) {
	// Garbage from both JSON stages: the pipeline continues with only the
	// deterministic performance issues.
	provider := &scriptedProvider{
		responses: []string{
			"An agent of some kind.",
			"I don't feel like emitting JSON today.",
			"Neither here.",
		},
	}

	d := New(provider, nil)
	result, err := d.DiscoverIssues(context.Background(), []models.Trace{makeTrace("t-1", 45000)}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.DiscoveredCategories)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "critical_response_latency", result.Issues[0].IssueType)
}

func TestDiscoverIssuesProviderErrorPropagates(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{errors.New("model endpoint unavailable")},
	}

	d := New(provider, nil)
	_, err := d.DiscoverIssues(context.Background(), []models.Trace{makeTrace("t-1", 100)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent understanding failed")
}

func TestDiscoverIssuesRequiresFeedbackDefaultsTrue(t *testing.T) {
	provider := &scriptedProvider{
		responses: []string{
			"An agent.",
			`{"discovered_issue_types": []}`,
			`{"issues": [{"issue_type": "a", "severity": "low", "title": "A", "description": "d", "affected_traces": 0, "all_trace_ids": []}, {"issue_type": "b", "severity": "low", "title": "B", "description": "d", "affected_traces": 0, "all_trace_ids": [], "requires_feedback": false}]}`,
		},
	}

	d := New(provider, nil)
	result, err := d.DiscoverIssues(context.Background(), []models.Trace{makeTrace("t-1", 100)}, nil)
	require.NoError(t, err)
	require.Len(t, result.Issues, 2)
	assert.True(t, result.Issues[0].RequiresFeedback)
	assert.False(t, result.Issues[1].RequiresFeedback)
}

func TestSortIssuesSeverityThenVolume(t *testing.T) {
	issues := []models.DiscoveredIssue{
		{IssueType: "low-few", Severity: models.SeverityLow, AffectedTraces: 1},
		{IssueType: "high-many", Severity: models.SeverityHigh, AffectedTraces: 9},
		{IssueType: "high-few", Severity: models.SeverityHigh, AffectedTraces: 2},
		{IssueType: "critical", Severity: models.SeverityCritical, AffectedTraces: 1},
	}

	sortIssues(issues)

	assert.Equal(t, "critical", issues[0].IssueType)
	assert.Equal(t, "high-many", issues[1].IssueType)
	assert.Equal(t, "high-few", issues[2].IssueType)
	assert.Equal(t, "low-few", issues[3].IssueType)
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, parseSeverity("CRITICAL"))
	assert.Equal(t, models.SeverityLow, parseSeverity("low"))
	assert.Equal(t, models.SeverityMedium, parseSeverity("bogus"))
}
