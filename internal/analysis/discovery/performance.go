package discovery

import (
	"fmt"
	"regexp"
	"sort"

	"tracelens/internal/models"
)

// Deterministic latency thresholds, in milliseconds.
const (
	DefaultCriticalLatencyMs = 30000
	DefaultHighLatencyMs     = 10000
	DefaultSlowToolMs        = 5000
)

// The tracer de-duplicates repeated tool names with numeric suffixes
// (lookup_order_1, lookup_order_2); strip them so stats group by tool.
var toolSuffixRe = regexp.MustCompile(`_\d+$`)

// NormalizeToolName strips a trailing _<digits> de-duplication suffix.
func NormalizeToolName(name string) string {
	return toolSuffixRe.ReplaceAllString(name, "")
}

// PerformanceThresholds configures the deterministic rule checks.
type PerformanceThresholds struct {
	CriticalLatencyMs int64
	HighLatencyMs     int64
	SlowToolMs        int64
}

// DefaultThresholds returns the standard performance thresholds.
func DefaultThresholds() PerformanceThresholds {
	return PerformanceThresholds{
		CriticalLatencyMs: DefaultCriticalLatencyMs,
		HighLatencyMs:     DefaultHighLatencyMs,
		SlowToolMs:        DefaultSlowToolMs,
	}
}

// CheckPerformance runs the rule-based checks that need no model call: whole
// trace latency against the critical/high thresholds, and per-tool slow span
// detection. Results are fully reproducible from span timing fields alone.
// These issues carry RequiresFeedback=false: they are objective metrics, not
// SME judgments.
func CheckPerformance(traces []models.Trace, th PerformanceThresholds) []models.DiscoveredIssue {
	var issues []models.DiscoveredIssue

	var critical, high []string
	for _, t := range traces {
		switch {
		case t.Info.ExecutionTimeMs > th.CriticalLatencyMs:
			critical = append(critical, t.Info.TraceID)
		case t.Info.ExecutionTimeMs > th.HighLatencyMs:
			high = append(high, t.Info.TraceID)
		}
	}

	if len(critical) > 0 {
		issues = append(issues, models.DiscoveredIssue{
			IssueType:      "critical_response_latency",
			Category:       "performance",
			Severity:       models.SeverityCritical,
			Title:          "Critical response latency",
			Description:    fmt.Sprintf("%d trace(s) exceeded %dms end-to-end execution time.", len(critical), th.CriticalLatencyMs),
			AffectedTraces: len(critical),
			AllTraceIDs:    critical,
			ExampleTraces:  firstN(critical, 5),
		})
	}

	if len(high) > 0 {
		issues = append(issues, models.DiscoveredIssue{
			IssueType:      "high_response_latency",
			Category:       "performance",
			Severity:       models.SeverityHigh,
			Title:          "High response latency",
			Description:    fmt.Sprintf("%d trace(s) exceeded %dms end-to-end execution time.", len(high), th.HighLatencyMs),
			AffectedTraces: len(high),
			AllTraceIDs:    high,
			ExampleTraces:  firstN(high, 5),
		})
	}

	issues = append(issues, checkSlowTools(traces, th.SlowToolMs)...)
	return issues
}

// checkSlowTools flags every tool whose spans exceed the slow threshold,
// grouped by normalized tool name.
func checkSlowTools(traces []models.Trace, thresholdMs int64) []models.DiscoveredIssue {
	type slowTool struct {
		traceIDs  map[string]bool
		spanCount int
		maxMs     int64
	}
	slow := map[string]*slowTool{}

	for _, t := range traces {
		for _, s := range t.ToolSpans() {
			if s.DurationMs() <= thresholdMs {
				continue
			}
			name := NormalizeToolName(s.Name)
			st, ok := slow[name]
			if !ok {
				st = &slowTool{traceIDs: map[string]bool{}}
				slow[name] = st
			}
			st.traceIDs[t.Info.TraceID] = true
			st.spanCount++
			if s.DurationMs() > st.maxMs {
				st.maxMs = s.DurationMs()
			}
		}
	}

	names := make([]string, 0, len(slow))
	for name := range slow {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []models.DiscoveredIssue
	for _, name := range names {
		st := slow[name]
		ids := make([]string, 0, len(st.traceIDs))
		for id := range st.traceIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		issues = append(issues, models.DiscoveredIssue{
			IssueType:      "slow_tool_" + name,
			Category:       "performance",
			Severity:       models.SeverityHigh,
			Title:          fmt.Sprintf("Slow tool: %s", name),
			Description:    fmt.Sprintf("Tool %s had %d span(s) over %dms (slowest %dms).", name, st.spanCount, thresholdMs, st.maxMs),
			AffectedTraces: len(ids),
			AllTraceIDs:    ids,
			ExampleTraces:  firstN(ids, 5),
		})
	}

	return issues
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
