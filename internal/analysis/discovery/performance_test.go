package discovery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracelens/internal/models"
)

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "lookup_order", NormalizeToolName("lookup_order_1"))
	assert.Equal(t, "lookup_order", NormalizeToolName("lookup_order_23"))
	assert.Equal(t, "lookup_order", NormalizeToolName("lookup_order"))
	assert.Equal(t, "query_v2_runner", NormalizeToolName("query_v2_runner"))
}

func makeTrace(id string, execMs int64, spans ...models.Span) models.Trace {
	return models.Trace{
		Info: models.TraceInfo{
			TraceID:         id,
			ExperimentID:    "exp-1",
			ExecutionTimeMs: execMs,
			Status:          "OK",
		},
		Data: models.TraceData{Spans: spans},
	}
}

func toolSpan(name string, startMs, endMs int64, status string) models.Span {
	return models.Span{
		SpanID:      "span-" + name,
		Name:        name,
		SpanType:    models.SpanTypeTool,
		StartTimeMs: startMs,
		EndTimeMs:   endMs,
		Status:      status,
	}
}

func TestCheckPerformanceLatencyBuckets(t *testing.T) {
	traces := []models.Trace{
		makeTrace("t-critical", 45000),
		makeTrace("t-high", 15000),
		makeTrace("t-fast", 2000),
	}

	issues := CheckPerformance(traces, DefaultThresholds())
	require.Len(t, issues, 2)

	assert.Equal(t, "critical_response_latency", issues[0].IssueType)
	assert.Equal(t, models.SeverityCritical, issues[0].Severity)
	assert.Equal(t, []string{"t-critical"}, issues[0].AllTraceIDs)
	assert.Equal(t, 1, issues[0].AffectedTraces)

	assert.Equal(t, "high_response_latency", issues[1].IssueType)
	assert.Equal(t, models.SeverityHigh, issues[1].Severity)
	assert.Equal(t, []string{"t-high"}, issues[1].AllTraceIDs)
}

func TestCheckPerformanceCriticalExcludedFromHigh(t *testing.T) {
	// A trace over the critical threshold is also over the high threshold but
	// must only be counted once, in the critical bucket.
	traces := []models.Trace{makeTrace("t-1", 60000)}

	issues := CheckPerformance(traces, DefaultThresholds())
	require.Len(t, issues, 1)
	assert.Equal(t, "critical_response_latency", issues[0].IssueType)
}

func TestCheckPerformanceSlowToolsGroupedByNormalizedName(t *testing.T) {
	traces := []models.Trace{
		makeTrace("t-1", 4000,
			toolSpan("run_query_1", 0, 6000, "OK"),
			toolSpan("run_query_2", 6000, 13500, "OK"),
		),
		makeTrace("t-2", 4000,
			toolSpan("run_query_1", 0, 5500, "OK"),
			toolSpan("fetch_schema", 0, 100, "OK"),
		),
	}

	issues := CheckPerformance(traces, DefaultThresholds())
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, "slow_tool_run_query", issue.IssueType)
	assert.Equal(t, models.SeverityHigh, issue.Severity)
	assert.Equal(t, []string{"t-1", "t-2"}, issue.AllTraceIDs)
	assert.Equal(t, 2, issue.AffectedTraces)
	assert.Contains(t, issue.Description, "3 span(s)")
	assert.Contains(t, issue.Description, "7500ms")
}

func TestCheckPerformanceErrorsAloneProduceNoLatencyIssues(t *testing.T) {
	// Traces with failing tool spans but healthy timings: the deterministic
	// checks look only at durations, so nothing should be flagged.
	var traces []models.Trace
	for i := 1; i <= 5; i++ {
		traces = append(traces, makeTrace(
			fmt.Sprintf("trace_%03d", i),
			8000,
			toolSpan("lookup_order", 0, 3000, "ERROR"),
		))
	}

	issues := CheckPerformance(traces, DefaultThresholds())
	assert.Empty(t, issues)
}

func TestCheckPerformanceBoundaryValuesNotFlagged(t *testing.T) {
	// Thresholds are strict: exactly-at-threshold values do not trip them.
	traces := []models.Trace{
		makeTrace("t-at-high", 10000, toolSpan("slow_tool", 0, 5000, "OK")),
	}

	issues := CheckPerformance(traces, DefaultThresholds())
	assert.Empty(t, issues)
}

func TestCheckPerformanceCriticalBoundaryFallsToHighBucket(t *testing.T) {
	// Exactly 30000ms misses the strict critical check but still exceeds
	// the high threshold.
	traces := []models.Trace{makeTrace("t-at-critical", 30000)}

	issues := CheckPerformance(traces, DefaultThresholds())
	require.Len(t, issues, 1)
	assert.Equal(t, "high_response_latency", issues[0].IssueType)
	assert.Equal(t, []string{"t-at-critical"}, issues[0].AllTraceIDs)
}

func TestFirstN(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, firstN(ids, 5))
	assert.Equal(t, []string{"a", "b"}, firstN([]string{"a", "b"}, 5))
	assert.Empty(t, firstN(nil, 5))
}
