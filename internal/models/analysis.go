package models

import "time"

// Severity levels for discovered issues, ordered critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank maps a severity to its sort weight. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DiscoveredIssue is one quality problem surfaced by discovery, either by the
// deterministic rule checks or by the LLM mapping stage.
type DiscoveredIssue struct {
	IssueType           string   `json:"issue_type"`
	Category            string   `json:"category,omitempty"`
	Severity            Severity `json:"severity"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	AffectedTraces      int      `json:"affected_traces"`
	AllTraceIDs         []string `json:"all_trace_ids"`
	ExampleTraces       []string `json:"example_traces"`
	ProblemSnippets     []string `json:"problem_snippets,omitempty"`
	RequiresFeedback    bool     `json:"requires_feedback"`
	RequiresExpectation bool     `json:"requires_expectation"`
	EvaluationQuestion  string   `json:"evaluation_question,omitempty"`
}

// DiscoveredCategory is a candidate issue category proposed by the LLM before
// the exhaustive mapping stage runs.
type DiscoveredCategory struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	ExampleTraceIDs    []string `json:"example_trace_ids"`
	EvaluationQuestion string   `json:"evaluation_question"`
}

// DiscoveryResult aggregates everything issue discovery produced for one run.
type DiscoveryResult struct {
	AgentUnderstanding   string               `json:"agent_understanding"`
	DiscoveredCategories []DiscoveredCategory `json:"discovered_categories"`
	Issues               []DiscoveredIssue    `json:"issues"`
	Metadata             map[string]any       `json:"metadata,omitempty"`
}

// LabelType distinguishes subjective feedback from expected-output definitions.
type LabelType string

const (
	LabelTypeFeedback    LabelType = "FEEDBACK"
	LabelTypeExpectation LabelType = "EXPECTATION"
)

// SchemaType is the value shape an SME is asked to provide.
type SchemaType string

const (
	SchemaTypeCategorical SchemaType = "categorical"
	SchemaTypeNumerical   SchemaType = "numerical"
	SchemaTypeText        SchemaType = "text"
)

// LabelingSchema is a proposed definition of what an SME should judge.
type LabelingSchema struct {
	Key                string     `json:"key"`
	Name               string     `json:"name"`
	LabelType          LabelType  `json:"label_type"`
	SchemaType         SchemaType `json:"schema_type"`
	Description        string     `json:"description"`
	Options            []string   `json:"options,omitempty"`
	MinValue           float64    `json:"min_value,omitempty"`
	MaxValue           float64    `json:"max_value,omitempty"`
	PriorityScore      int        `json:"priority_score"`
	GroundedInTraces   []string   `json:"grounded_in_traces,omitempty"`
	AllAffectedTraces  []string   `json:"all_affected_traces,omitempty"`
	AffectedTraceCount int        `json:"affected_trace_count"`
}

// AnalysisResult is the top-level aggregate produced by one analyzer run.
type AnalysisResult struct {
	Status               string            `json:"status"`
	Error                string            `json:"error,omitempty"`
	ExperimentID         string            `json:"experiment_id"`
	Metadata             map[string]any    `json:"metadata,omitempty"`
	ExecutiveSummary     string            `json:"executive_summary,omitempty"`
	Content              string            `json:"content,omitempty"`
	RawAgentAnalysis     string            `json:"raw_sme_analysis,omitempty"`
	DetectedIssues       []DiscoveredIssue `json:"detected_issues,omitempty"`
	SchemasWithLabelType []LabelingSchema  `json:"schemas_with_label_types,omitempty"`
	Storage              *StorageInfo      `json:"storage,omitempty"`
}

// StorageInfo records where a completed analysis was persisted.
type StorageInfo struct {
	RunID      string `json:"run_id"`
	ReportPath string `json:"report_path"`
	DataPath   string `json:"data_path"`
}

// Analysis run states exposed to clients polling the status endpoint.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// AnalysisStatus is the poll-able state of a long-running analysis.
type AnalysisStatus struct {
	ID        string    `json:"id,omitempty"`
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
