// Package report renders discovery and schema output into a markdown report.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tracelens/internal/analysis/discovery"
	"tracelens/internal/models"
)

// Input carries everything the report needs from prior stages. Rendering is a
// pure function of this struct; no I/O happens here.
type Input struct {
	Experiment *models.ExperimentInfo
	Traces     []models.Trace
	Discovery  *models.DiscoveryResult
	Schemas    []models.LabelingSchema
	Generated  time.Time
}

// toolStat aggregates span statistics per normalized tool name.
type toolStat struct {
	name       string
	calls      int
	errors     int
	totalMs    int64
	maxMs      int64
	traceCount map[string]bool
}

// Generate renders the full markdown report. Sections with no data render a
// short placeholder; only fully empty sections are dropped from the join.
func Generate(in Input) string {
	sections := []string{
		header(in),
		agentAnalysis(in.Discovery),
		executiveSummary(in),
		coreMetrics(in.Traces),
		toolsAnalysis(in.Traces),
		issuesBySeverity(in.Discovery),
		schemasSection(in.Schemas),
		recommendations(in),
	}

	var nonEmpty []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, strings.TrimRight(s, "\n"))
		}
	}

	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func header(in Input) string {
	name := ""
	id := ""
	if in.Experiment != nil {
		name = in.Experiment.Name
		id = in.Experiment.ExperimentID
	}
	generated := in.Generated
	if generated.IsZero() {
		generated = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Experiment Analysis: %s\n\n", name)
	fmt.Fprintf(&b, "**Experiment ID:** %s  \n", id)
	fmt.Fprintf(&b, "**Generated:** %s  \n", generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Traces analyzed:** %d", len(in.Traces))
	return b.String()
}

func agentAnalysis(d *models.DiscoveryResult) string {
	if d == nil || strings.TrimSpace(d.AgentUnderstanding) == "" {
		return ""
	}
	return "## Agent Analysis\n\n" + strings.TrimSpace(d.AgentUnderstanding)
}

// executiveSummary computes key-findings callouts for critical latency and
// bottleneck tools, then summarizes issue counts.
func executiveSummary(in Input) string {
	var b strings.Builder
	b.WriteString("## Executive Summary\n\n")

	issues := issuesOf(in.Discovery)
	if len(issues) == 0 {
		b.WriteString("No quality issues were detected in the analyzed traces.")
		return b.String()
	}

	counts := map[models.Severity]int{}
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	fmt.Fprintf(&b, "Discovered **%d** issue(s): %d critical, %d high, %d medium, %d low.\n",
		len(issues),
		counts[models.SeverityCritical],
		counts[models.SeverityHigh],
		counts[models.SeverityMedium],
		counts[models.SeverityLow])

	var findings []string
	for _, issue := range issues {
		if issue.IssueType == "critical_response_latency" {
			findings = append(findings, fmt.Sprintf("⚠️ %d trace(s) with critical response latency", issue.AffectedTraces))
		}
		if strings.HasPrefix(issue.IssueType, "slow_tool_") {
			findings = append(findings, fmt.Sprintf("🔧 Bottleneck tool: %s (%d trace(s) affected)",
				strings.TrimPrefix(issue.IssueType, "slow_tool_"), issue.AffectedTraces))
		}
	}
	if len(findings) > 0 {
		b.WriteString("\n**Key findings:**\n\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return b.String()
}

func coreMetrics(traces []models.Trace) string {
	var b strings.Builder
	b.WriteString("## Core Metrics\n\n")

	if len(traces) == 0 {
		b.WriteString("No traces were available for metric computation.")
		return b.String()
	}

	var totalMs, maxMs int64
	errorCount := 0
	for _, t := range traces {
		totalMs += t.Info.ExecutionTimeMs
		if t.Info.ExecutionTimeMs > maxMs {
			maxMs = t.Info.ExecutionTimeMs
		}
		if strings.EqualFold(t.Info.Status, "ERROR") {
			errorCount++
		}
	}

	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Trace count | %d |\n", len(traces))
	fmt.Fprintf(&b, "| Avg execution time | %dms |\n", totalMs/int64(len(traces)))
	fmt.Fprintf(&b, "| Max execution time | %dms |\n", maxMs)
	fmt.Fprintf(&b, "| Error traces | %d (%.1f%%) |", errorCount, 100*float64(errorCount)/float64(len(traces)))
	return b.String()
}

func toolsAnalysis(traces []models.Trace) string {
	stats := map[string]*toolStat{}
	for _, t := range traces {
		for _, s := range t.ToolSpans() {
			name := discovery.NormalizeToolName(s.Name)
			st, ok := stats[name]
			if !ok {
				st = &toolStat{name: name, traceCount: map[string]bool{}}
				stats[name] = st
			}
			st.calls++
			st.totalMs += s.DurationMs()
			if s.DurationMs() > st.maxMs {
				st.maxMs = s.DurationMs()
			}
			if strings.EqualFold(s.Status, "ERROR") {
				st.errors++
			}
			st.traceCount[t.Info.TraceID] = true
		}
	}

	var b strings.Builder
	b.WriteString("## Tools Analysis\n\n")

	if len(stats) == 0 {
		b.WriteString("No tool spans were found in the analyzed traces.")
		return b.String()
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return stats[names[i]].calls > stats[names[j]].calls
	})

	b.WriteString("| Tool | Calls | Errors | Avg ms | Max ms | Traces |\n|---|---|---|---|---|---|\n")
	for _, name := range names {
		st := stats[name]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d |\n",
			st.name, st.calls, st.errors, st.totalMs/int64(st.calls), st.maxMs, len(st.traceCount))
	}
	return b.String()
}

func issuesBySeverity(d *models.DiscoveryResult) string {
	var b strings.Builder
	b.WriteString("## Detected Issues\n\n")

	issues := issuesOf(d)
	if len(issues) == 0 {
		b.WriteString("No issues found.")
		return b.String()
	}

	order := []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow}
	for _, sev := range order {
		var group []models.DiscoveredIssue
		for _, issue := range issues {
			if issue.Severity == sev {
				group = append(group, issue)
			}
		}
		if len(group) == 0 {
			continue
		}

		fmt.Fprintf(&b, "### %s\n\n", strings.ToUpper(string(sev[0]))+string(sev[1:]))
		for _, issue := range group {
			fmt.Fprintf(&b, "#### %s\n\n", issue.Title)
			fmt.Fprintf(&b, "%s\n\n", issue.Description)
			fmt.Fprintf(&b, "- Affected traces: %d\n", issue.AffectedTraces)
			if len(issue.ExampleTraces) > 0 {
				fmt.Fprintf(&b, "- Examples: %s\n", strings.Join(issue.ExampleTraces, ", "))
			}
			if issue.EvaluationQuestion != "" {
				fmt.Fprintf(&b, "- Evaluation question: %s\n", issue.EvaluationQuestion)
			}
			for _, snippet := range issue.ProblemSnippets {
				fmt.Fprintf(&b, "- Evidence: `%s`\n", snippet)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func schemasSection(schemas []models.LabelingSchema) string {
	var b strings.Builder
	b.WriteString("## Proposed Labeling Schemas\n\n")

	if len(schemas) == 0 {
		b.WriteString("No labeling schemas were generated.")
		return b.String()
	}

	b.WriteString("| Key | Name | Type | Label | Priority | Affected |\n|---|---|---|---|---|---|\n")
	for _, s := range schemas {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %d | %d |\n",
			s.Key, s.Name, s.SchemaType, s.LabelType, s.PriorityScore, s.AffectedTraceCount)
	}
	return b.String()
}

func recommendations(in Input) string {
	var b strings.Builder
	b.WriteString("## Recommendations\n\n")

	issues := issuesOf(in.Discovery)
	var recs []string

	for _, issue := range issues {
		if issue.Severity == models.SeverityCritical {
			recs = append(recs, fmt.Sprintf("Address **%s** first: it affects %d trace(s).", issue.Title, issue.AffectedTraces))
		}
		if strings.HasPrefix(issue.IssueType, "slow_tool_") {
			recs = append(recs, fmt.Sprintf("Profile the `%s` tool; its spans dominate trace latency.",
				strings.TrimPrefix(issue.IssueType, "slow_tool_")))
		}
	}
	if len(in.Schemas) > 0 {
		recs = append(recs, fmt.Sprintf("Create a labeling session with the top %d proposed schema(s) to collect SME judgments.", len(in.Schemas)))
	}
	if len(recs) == 0 {
		recs = append(recs, "Continue monitoring; no action required at this time.")
	}

	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return b.String()
}

func issuesOf(d *models.DiscoveryResult) []models.DiscoveredIssue {
	if d == nil {
		return nil
	}
	return d.Issues
}
