// Package models defines the shared core data structures used throughout tracelens.
package models

// SpanType classifies the kind of work a span represents.
type SpanType string

const (
	SpanTypeLLM       SpanType = "LLM"
	SpanTypeChatModel SpanType = "CHAT_MODEL"
	SpanTypeRetriever SpanType = "RETRIEVER"
	SpanTypeChain     SpanType = "CHAIN"
	SpanTypeAgent     SpanType = "AGENT"
	SpanTypeTool      SpanType = "TOOL"
	SpanTypeUnknown   SpanType = "UNKNOWN"
)

// TraceInfo holds the identifying and timing metadata of a trace.
type TraceInfo struct {
	TraceID         string `json:"trace_id"`
	ExperimentID    string `json:"experiment_id"`
	TimestampMs     int64  `json:"timestamp_ms"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Status          string `json:"status"`
	RequestID       string `json:"request_id,omitempty"`
}

// Span represents a single timed unit of work within a trace.
type Span struct {
	SpanID      string                 `json:"span_id"`
	Name        string                 `json:"name"`
	SpanType    SpanType               `json:"span_type"`
	ParentID    string                 `json:"parent_id,omitempty"`
	StartTimeMs int64                  `json:"start_time_ms"`
	EndTimeMs   int64                  `json:"end_time_ms"`
	Status      string                 `json:"status"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// DurationMs returns the wall-clock duration of the span.
func (s *Span) DurationMs() int64 {
	return s.EndTimeMs - s.StartTimeMs
}

// TraceData holds the request/response payload and the spans of a trace.
type TraceData struct {
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
	Spans    []Span `json:"spans"`
}

// Trace is a read-only snapshot of one recorded agent execution.
type Trace struct {
	Info TraceInfo `json:"info"`
	Data TraceData `json:"data"`
}

// ToolSpans returns the TOOL spans of the trace in document order.
func (t *Trace) ToolSpans() []Span {
	var tools []Span
	for _, s := range t.Data.Spans {
		if s.SpanType == SpanTypeTool {
			tools = append(tools, s)
		}
	}
	return tools
}

// ExperimentInfo describes the experiment a set of traces belongs to.
type ExperimentInfo struct {
	ExperimentID string            `json:"experiment_id"`
	Name         string            `json:"name"`
	ArtifactURI  string            `json:"artifact_location,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}
