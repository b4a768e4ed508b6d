// Package schemagen converts discovered issues into proposed labeling schemas
// for SME review.
package schemagen

import (
	"regexp"
	"sort"
	"strings"

	"tracelens/internal/models"
)

// MaxSchemas caps the generated schema list after sorting by priority.
const MaxSchemas = 15

// MinSchemas is the floor below which the baseline fallback schemas are added.
const MinSchemas = 3

var (
	keyInvalidRe  = regexp.MustCompile(`[^a-z0-9_]+`)
	keyCollapseRe = regexp.MustCompile(`_+`)
)

// SanitizeKey lowercases, replaces runs of invalid characters with a single
// underscore, trims edge underscores, and truncates to 50 characters. Inputs
// with no usable characters at all map to "unnamed_issue" so the result is
// never empty.
func SanitizeKey(s string) string {
	key := sanitizeTo(s, 50)
	if key == "" {
		return "unnamed_issue"
	}
	return key
}

func sanitizeTo(s string, max int) string {
	key := strings.ToLower(s)
	key = keyInvalidRe.ReplaceAllString(key, "_")
	key = keyCollapseRe.ReplaceAllString(key, "_")
	key = strings.Trim(key, "_")
	if len(key) > max {
		key = key[:max]
		key = strings.Trim(key, "_")
	}
	return key
}

// expectationKey derives the companion expectation key. The base is truncated
// before the suffix is appended so the suffix always survives the 50-character
// cap and the two keys never collide.
func expectationKey(issueType string) string {
	const suffix = "_expected"
	base := sanitizeTo(issueType, 50-len(suffix))
	if base == "" {
		base = "unnamed_issue"
	}
	return base + suffix
}

// PriorityScore computes base severity score plus an affected-volume bonus,
// capped at 100.
func PriorityScore(severity models.Severity, affected int) int {
	score := 0
	switch severity {
	case models.SeverityCritical:
		score = 100
	case models.SeverityHigh:
		score = 75
	case models.SeverityMedium:
		score = 50
	case models.SeverityLow:
		score = 25
	}

	switch {
	case affected > 20:
		score += 20
	case affected > 10:
		score += 10
	case affected > 5:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// inferSchemaType picks a schema type from the phrasing of the evaluation
// question: open-ended verbs produce text, rating language produces numerical,
// everything else defaults to categorical.
func inferSchemaType(question string) models.SchemaType {
	q := strings.ToLower(question)

	for _, marker := range []string{"rewrite", "provide", "what should", "explain", "describe", "write"} {
		if strings.Contains(q, marker) {
			return models.SchemaTypeText
		}
	}
	for _, marker := range []string{"rate", "score", "scale", "level", "1-5", "1-10"} {
		if strings.Contains(q, marker) {
			return models.SchemaTypeNumerical
		}
	}
	return models.SchemaTypeCategorical
}

// categoricalOptions returns binary True/False unless the issue type calls
// for a graded judgment.
func categoricalOptions(issueType string) []string {
	t := strings.ToLower(issueType)
	if strings.Contains(t, "partial") || strings.Contains(t, "degree") {
		return []string{"Fully", "Partially", "Not at all"}
	}
	return []string{"True", "False"}
}

// isPerformanceIssue filters issues that map to objective metrics rather than
// SME judgment; no labeling schema is generated for them.
func isPerformanceIssue(issue models.DiscoveredIssue) bool {
	return issue.Category == "performance" || strings.Contains(strings.ToLower(issue.IssueType), "latency")
}

// GenerateSchemasForIssues builds the labeling schema proposals for a set of
// discovered issues, capped at MaxSchemas.
func GenerateSchemasForIssues(issues []models.DiscoveredIssue, agentUnderstanding string) []models.LabelingSchema {
	return GenerateSchemas(issues, agentUnderstanding, MaxSchemas)
}

// GenerateSchemas is GenerateSchemasForIssues with a configurable cap.
// Non-positive caps fall back to MaxSchemas. Deterministic given identical
// inputs: scoring, dedup, augmentation, and truncation involve no model calls.
func GenerateSchemas(issues []models.DiscoveredIssue, agentUnderstanding string, maxSchemas int) []models.LabelingSchema {
	if maxSchemas <= 0 {
		maxSchemas = MaxSchemas
	}

	var schemas []models.LabelingSchema

	for _, issue := range issues {
		if isPerformanceIssue(issue) {
			continue
		}
		if issue.RequiresFeedback {
			schemas = append(schemas, schemaFromIssue(issue, models.LabelTypeFeedback))
		}
		if issue.RequiresExpectation {
			schemas = append(schemas, schemaFromIssue(issue, models.LabelTypeExpectation))
		}
	}

	if isDomainAgent(agentUnderstanding) {
		schemas = append(schemas, domainSchemas()...)
	}

	schemas = dedupeByKey(schemas)

	if len(schemas) < MinSchemas {
		schemas = append(schemas, baselineSchemas()...)
		schemas = dedupeByKey(schemas)
	}

	sort.SliceStable(schemas, func(a, b int) bool {
		return schemas[a].PriorityScore > schemas[b].PriorityScore
	})

	if len(schemas) > maxSchemas {
		schemas = schemas[:maxSchemas]
	}

	return schemas
}

func schemaFromIssue(issue models.DiscoveredIssue, labelType models.LabelType) models.LabelingSchema {
	key := SanitizeKey(issue.IssueType)
	name := issue.Title
	description := issue.Description

	if labelType == models.LabelTypeExpectation {
		key = expectationKey(issue.IssueType)
		name = "Expected: " + issue.Title
		description = "Provide the correct/expected output for this trace. Context: " + issue.Description
	}

	schema := models.LabelingSchema{
		Key:                key,
		Name:               name,
		LabelType:          labelType,
		Description:        description,
		PriorityScore:      PriorityScore(issue.Severity, issue.AffectedTraces),
		GroundedInTraces:   issue.ExampleTraces,
		AllAffectedTraces:  issue.AllTraceIDs,
		AffectedTraceCount: len(issue.AllTraceIDs),
	}

	if labelType == models.LabelTypeExpectation {
		// Expectations are always free text: the SME writes the correct output.
		schema.SchemaType = models.SchemaTypeText
		return schema
	}

	schema.SchemaType = inferSchemaType(issue.EvaluationQuestion)
	switch schema.SchemaType {
	case models.SchemaTypeCategorical:
		schema.Options = categoricalOptions(issue.IssueType)
	case models.SchemaTypeNumerical:
		schema.MinValue = 1
		schema.MaxValue = 5
	}

	return schema
}

// dedupeByKey merges schemas with colliding keys: trace-ID sets are unioned,
// the count recomputed, and the higher priority score kept. First occurrence
// order is preserved.
func dedupeByKey(schemas []models.LabelingSchema) []models.LabelingSchema {
	byKey := map[string]int{}
	var out []models.LabelingSchema

	for _, s := range schemas {
		idx, seen := byKey[s.Key]
		if !seen {
			byKey[s.Key] = len(out)
			out = append(out, s)
			continue
		}

		existing := &out[idx]
		existing.AllAffectedTraces = unionIDs(existing.AllAffectedTraces, s.AllAffectedTraces)
		existing.AffectedTraceCount = len(existing.AllAffectedTraces)
		if s.PriorityScore > existing.PriorityScore {
			existing.PriorityScore = s.PriorityScore
		}
	}

	return out
}

// unionIDs merges two ID lists preserving first-seen order.
func unionIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func isDomainAgent(agentUnderstanding string) bool {
	u := strings.ToLower(agentUnderstanding)
	return strings.Contains(u, "databricks") || strings.Contains(u, "warehouse")
}

// domainSchemas returns the hand-authored schemas appended whenever the agent
// operates in the data-warehouse domain, regardless of discovered issues.
func domainSchemas() []models.LabelingSchema {
	return []models.LabelingSchema{
		{
			Key:           "sql_correctness",
			Name:          "SQL correctness",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeCategorical,
			Description:   "Is the generated SQL syntactically valid and does it answer the user's question?",
			Options:       []string{"True", "False"},
			PriorityScore: 90,
		},
		{
			Key:           "table_selection",
			Name:          "Table selection",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeCategorical,
			Description:   "Did the agent query the correct tables and columns for this request?",
			Options:       []string{"True", "False"},
			PriorityScore: 85,
		},
		{
			Key:           "data_accuracy",
			Name:          "Data accuracy",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeCategorical,
			Description:   "Are the figures and aggregates in the response consistent with the underlying data?",
			Options:       []string{"True", "False"},
			PriorityScore: 85,
		},
		{
			Key:           "query_efficiency",
			Name:          "Query efficiency",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeNumerical,
			Description:   "Rate how efficiently the generated query uses the warehouse (1 = wasteful, 5 = optimal).",
			MinValue:      1,
			MaxValue:      5,
			PriorityScore: 60,
		},
		{
			Key:           "business_terminology",
			Name:          "Business terminology",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeCategorical,
			Description:   "Does the response use the organization's business terms and metric definitions correctly?",
			Options:       []string{"True", "False"},
			PriorityScore: 55,
		},
	}
}

// baselineSchemas returns the fixed fallback set used when discovery produced
// too few schemas to be useful.
func baselineSchemas() []models.LabelingSchema {
	return []models.LabelingSchema{
		{
			Key:           "response_clarity",
			Name:          "Response clarity",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeCategorical,
			Description:   "Is the response clear and easy to follow?",
			Options:       []string{"True", "False"},
			PriorityScore: 50,
		},
		{
			Key:           "actionability",
			Name:          "Actionability",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeCategorical,
			Description:   "Can the user act on this response without further clarification?",
			Options:       []string{"True", "False"},
			PriorityScore: 50,
		},
		{
			Key:           "domain_expertise",
			Name:          "Domain expertise",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeNumerical,
			Description:   "Rate the domain expertise reflected in the response (1 = novice, 5 = expert).",
			MinValue:      1,
			MaxValue:      5,
			PriorityScore: 45,
		},
		{
			Key:           "additional_observations",
			Name:          "Additional observations",
			LabelType:     models.LabelTypeFeedback,
			SchemaType:    models.SchemaTypeText,
			Description:   "Anything else worth recording about this trace.",
			PriorityScore: 30,
		},
	}
}
