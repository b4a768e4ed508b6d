package schemagen

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracelens/internal/models"
)

var keyRe = regexp.MustCompile(`^[a-z0-9_]{1,50}$`)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "sql_query_error", SanitizeKey("SQL Query-Error!!"))
	assert.Equal(t, "already_clean", SanitizeKey("already_clean"))
	assert.Equal(t, "spaces_and_dots", SanitizeKey("  Spaces.and.Dots  "))
	assert.Equal(t, "a_b", SanitizeKey("a---___b"))

	long := SanitizeKey("this_is_a_very_long_issue_type_name_that_keeps_going_and_going_forever")
	assert.LessOrEqual(t, len(long), 50)
	assert.Regexp(t, keyRe, long)
}

func TestSanitizeKeyNoUsableCharacters(t *testing.T) {
	// Degenerate model output still has to produce a valid, non-empty key.
	assert.Equal(t, "unnamed_issue", SanitizeKey("!!!"))
	assert.Equal(t, "unnamed_issue", SanitizeKey(""))
	assert.Equal(t, "unnamed_issue", SanitizeKey("___"))
	assert.Equal(t, "unnamed_issue", SanitizeKey("  ??  "))
}

func TestGenerateSchemasDegenerateIssueTypeGetsValidKey(t *testing.T) {
	schemas := GenerateSchemasForIssues([]models.DiscoveredIssue{
		issue("!!!", models.SeverityHigh, "t-1"),
	}, "")

	var found bool
	for _, s := range schemas {
		assert.Regexp(t, keyRe, s.Key)
		if s.Key == "unnamed_issue" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExpectationKeySurvivesTruncation(t *testing.T) {
	longType := "extremely_long_issue_type_name_that_exceeds_the_key_length_cap_by_far"

	iss := issue(longType, models.SeverityHigh, "t-1")
	iss.RequiresExpectation = true

	schemas := GenerateSchemasForIssues([]models.DiscoveredIssue{iss}, "")

	var feedback, expectation *models.LabelingSchema
	for i := range schemas {
		if schemas[i].LabelType == models.LabelTypeExpectation {
			expectation = &schemas[i]
		} else {
			feedback = &schemas[i]
		}
	}

	require.NotNil(t, feedback)
	require.NotNil(t, expectation)
	assert.NotEqual(t, feedback.Key, expectation.Key)
	assert.Regexp(t, keyRe, expectation.Key)
	assert.True(t, strings.HasSuffix(expectation.Key, "_expected"))
}

func TestPriorityScore(t *testing.T) {
	assert.Equal(t, 100, PriorityScore(models.SeverityCritical, 1))
	assert.Equal(t, 100, PriorityScore(models.SeverityCritical, 25))
	assert.Equal(t, 75, PriorityScore(models.SeverityHigh, 5))
	assert.Equal(t, 80, PriorityScore(models.SeverityHigh, 6))
	assert.Equal(t, 85, PriorityScore(models.SeverityHigh, 11))
	assert.Equal(t, 95, PriorityScore(models.SeverityHigh, 21))
	assert.Equal(t, 50, PriorityScore(models.SeverityMedium, 0))
	assert.Equal(t, 25, PriorityScore(models.SeverityLow, 0))
}

func issue(issueType string, severity models.Severity, traceIDs ...string) models.DiscoveredIssue {
	return models.DiscoveredIssue{
		IssueType:          issueType,
		Severity:           severity,
		Title:              issueType,
		Description:        "description of " + issueType,
		AffectedTraces:     len(traceIDs),
		AllTraceIDs:        traceIDs,
		ExampleTraces:      traceIDs,
		RequiresFeedback:   true,
		EvaluationQuestion: "Did the agent do the right thing?",
	}
}

func TestGenerateSchemasKeysValidAndUnique(t *testing.T) {
	issues := []models.DiscoveredIssue{
		issue("Wrong Table!", models.SeverityHigh, "t-1"),
		issue("hallucinated-answer", models.SeverityCritical, "t-2"),
	}

	schemas := GenerateSchemasForIssues(issues, "a support agent")

	seen := map[string]bool{}
	for _, s := range schemas {
		assert.Regexp(t, keyRe, s.Key)
		assert.False(t, seen[s.Key], "duplicate key %s", s.Key)
		seen[s.Key] = true
	}
}

func TestGenerateSchemasSkipsPerformanceIssues(t *testing.T) {
	perf := issue("critical_response_latency", models.SeverityCritical, "t-1")
	perf.Category = "performance"

	quality := issue("unhelpful_answer", models.SeverityHigh, "t-2")

	schemas := GenerateSchemasForIssues([]models.DiscoveredIssue{perf, quality}, "")

	for _, s := range schemas {
		assert.NotContains(t, s.Key, "latency")
	}
}

func TestGenerateSchemasExpectationAlwaysText(t *testing.T) {
	iss := issue("wrong_sql", models.SeverityHigh, "t-1")
	iss.RequiresExpectation = true
	iss.EvaluationQuestion = "Rate the SQL on a scale of 1-5"

	schemas := GenerateSchemasForIssues([]models.DiscoveredIssue{iss}, "")

	var feedback, expectation *models.LabelingSchema
	for i := range schemas {
		switch schemas[i].Key {
		case "wrong_sql":
			feedback = &schemas[i]
		case "wrong_sql_expected":
			expectation = &schemas[i]
		}
	}

	require.NotNil(t, feedback)
	require.NotNil(t, expectation)
	assert.Equal(t, models.SchemaTypeNumerical, feedback.SchemaType)
	assert.Equal(t, models.SchemaTypeText, expectation.SchemaType)
	assert.Equal(t, models.LabelTypeExpectation, expectation.LabelType)
}

func TestInferSchemaType(t *testing.T) {
	assert.Equal(t, models.SchemaTypeText, inferSchemaType("Rewrite the response correctly"))
	assert.Equal(t, models.SchemaTypeText, inferSchemaType("What should the agent have said?"))
	assert.Equal(t, models.SchemaTypeNumerical, inferSchemaType("Rate the clarity on a 1-5 scale"))
	assert.Equal(t, models.SchemaTypeCategorical, inferSchemaType("Did the agent answer correctly?"))
}

func TestCategoricalOptions(t *testing.T) {
	assert.Equal(t, []string{"True", "False"}, categoricalOptions("wrong_table"))
	assert.Equal(t, []string{"Fully", "Partially", "Not at all"}, categoricalOptions("partial_completion"))
}

func TestDedupeByKeyMergesCollisions(t *testing.T) {
	a := issue("duplicate issue", models.SeverityMedium, "t-1", "t-2")
	b := issue("Duplicate-Issue", models.SeverityHigh, "t-2", "t-3")

	schemas := GenerateSchemasForIssues([]models.DiscoveredIssue{a, b}, "")

	var merged *models.LabelingSchema
	for i := range schemas {
		if schemas[i].Key == "duplicate_issue" {
			merged = &schemas[i]
		}
	}
	require.NotNil(t, merged)
	assert.ElementsMatch(t, []string{"t-1", "t-2", "t-3"}, merged.AllAffectedTraces)
	assert.Equal(t, 3, merged.AffectedTraceCount)
	assert.Equal(t, 75, merged.PriorityScore)
}

func TestGenerateSchemasDomainAugmentation(t *testing.T) {
	schemas := GenerateSchemasForIssues(nil, "An agent answering questions over a Databricks warehouse.")

	keys := map[string]bool{}
	for _, s := range schemas {
		keys[s.Key] = true
	}
	assert.True(t, keys["sql_correctness"])
	assert.True(t, keys["table_selection"])
	assert.True(t, keys["data_accuracy"])
	assert.True(t, keys["query_efficiency"])
	assert.True(t, keys["business_terminology"])
}

func TestGenerateSchemasBaselineFallback(t *testing.T) {
	// Too few discovered schemas: the baseline set fills the gap.
	schemas := GenerateSchemasForIssues([]models.DiscoveredIssue{
		issue("only_issue", models.SeverityLow, "t-1"),
	}, "a generic agent")

	require.GreaterOrEqual(t, len(schemas), MinSchemas)

	keys := map[string]bool{}
	for _, s := range schemas {
		keys[s.Key] = true
	}
	assert.True(t, keys["only_issue"])
	assert.True(t, keys["response_clarity"])
	assert.True(t, keys["actionability"])
}

func TestGenerateSchemasTruncatesToMax(t *testing.T) {
	var issues []models.DiscoveredIssue
	for i := 0; i < 30; i++ {
		issues = append(issues, issue(fmt.Sprintf("issue_%02d", i), models.SeverityMedium, "t-1"))
	}

	schemas := GenerateSchemasForIssues(issues, "an agent over a databricks warehouse")
	assert.Len(t, schemas, MaxSchemas)
}

func TestGenerateSchemasHonorsConfiguredCap(t *testing.T) {
	var issues []models.DiscoveredIssue
	for i := 0; i < 10; i++ {
		issues = append(issues, issue(fmt.Sprintf("issue_%02d", i), models.SeverityMedium, "t-1"))
	}

	schemas := GenerateSchemas(issues, "", 4)
	assert.Len(t, schemas, 4)

	// Non-positive caps fall back to the default.
	schemas = GenerateSchemas(issues, "", 0)
	assert.Len(t, schemas, 10)
}

func TestGenerateSchemasSortedByPriority(t *testing.T) {
	issues := []models.DiscoveredIssue{
		issue("minor_issue", models.SeverityLow, "t-1"),
		issue("major_issue", models.SeverityCritical, "t-2"),
	}

	schemas := GenerateSchemasForIssues(issues, "")
	require.NotEmpty(t, schemas)
	for i := 1; i < len(schemas); i++ {
		assert.GreaterOrEqual(t, schemas[i-1].PriorityScore, schemas[i].PriorityScore)
	}
	assert.Equal(t, "major_issue", schemas[0].Key)
}

func TestGenerateSchemasDeterministic(t *testing.T) {
	issues := []models.DiscoveredIssue{
		issue("issue_one", models.SeverityHigh, "t-1", "t-2"),
		issue("issue_two", models.SeverityMedium, "t-3"),
	}

	first := GenerateSchemasForIssues(issues, "a databricks agent")
	second := GenerateSchemasForIssues(issues, "a databricks agent")
	assert.Equal(t, first, second)
}
