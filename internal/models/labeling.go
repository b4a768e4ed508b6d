package models

// Labeling item states as defined by the managed evaluation service.
const (
	ItemStatePending    = "PENDING"
	ItemStateInProgress = "IN_PROGRESS"
	ItemStateCompleted  = "COMPLETED"
	ItemStateSkipped    = "SKIPPED"
)

// LabelingSession groups labeling items handed to SMEs. Owned by the external
// evaluation service; this system only reads and aggregates it.
type LabelingSession struct {
	SessionID    string           `json:"labeling_session_id"`
	Name         string           `json:"name"`
	ExperimentID string           `json:"experiment_id"`
	MLflowRunID  string           `json:"mlflow_run_id,omitempty"`
	Schemas      []LabelingSchema `json:"labeling_schemas,omitempty"`
	Items        []LabelingItem   `json:"items,omitempty"`
}

// LabelingItem references one trace and accumulates label values keyed by
// schema key.
type LabelingItem struct {
	ItemID  string           `json:"item_id"`
	TraceID string           `json:"trace_id"`
	State   string           `json:"state"`
	Labels  map[string]Label `json:"labels,omitempty"`
	Comment string           `json:"comment,omitempty"`
}

// Label is a single recorded judgment for one schema on one item.
type Label struct {
	NumericValue *float64 `json:"numeric_value,omitempty"`
	StringValue  string   `json:"string_value,omitempty"`
}

// SchemaStats holds descriptive statistics for one schema across the
// completed items of a session.
type SchemaStats struct {
	SchemaKey    string         `json:"schema_key"`
	SchemaType   SchemaType     `json:"schema_type"`
	SampleCount  int            `json:"sample_count"`
	Mean         float64        `json:"mean,omitempty"`
	Median       float64        `json:"median,omitempty"`
	StdDev       float64        `json:"std_dev,omitempty"`
	Distribution map[string]int `json:"distribution,omitempty"`
	Themes       map[string]int `json:"themes,omitempty"`
	LowScoreIDs  []string       `json:"low_score_trace_ids,omitempty"`
}

// SessionAnalysisResult is the aggregate produced by the labeling-session
// analyzer, mirroring AnalysisResult for the human-label pipeline.
type SessionAnalysisResult struct {
	Status          string            `json:"status"`
	Error           string            `json:"error,omitempty"`
	SessionID       string            `json:"session_id"`
	ExperimentID    string            `json:"experiment_id,omitempty"`
	Stats           []SchemaStats     `json:"schema_stats,omitempty"`
	CriticalIssues  []DiscoveredIssue `json:"critical_issues,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Content         string            `json:"content,omitempty"`
	Storage         *StorageInfo      `json:"storage,omitempty"`
}
