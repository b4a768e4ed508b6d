package mlflow

import (
	"strings"

	"tracelens/internal/models"
)

// traceDTO mirrors the wire shape of a trace returned by the MLflow API.
type traceDTO struct {
	Info struct {
		TraceID         string            `json:"trace_id"`
		ExperimentID    string            `json:"experiment_id"`
		TimestampMs     int64             `json:"timestamp_ms"`
		ExecutionTimeMs int64             `json:"execution_time_ms"`
		Status          string            `json:"status"`
		RequestMetadata map[string]string `json:"request_metadata"`
	} `json:"info"`
	Data struct {
		Request  string    `json:"request"`
		Response string    `json:"response"`
		Spans    []spanDTO `json:"spans"`
	} `json:"data"`
}

// spanDTO mirrors the wire shape of a span. Timestamps arrive in nanoseconds.
type spanDTO struct {
	SpanID       string                 `json:"span_id"`
	Name         string                 `json:"name"`
	SpanType     string                 `json:"span_type"`
	ParentSpanID string                 `json:"parent_span_id"`
	StartTimeNs  int64                  `json:"start_time_ns"`
	EndTimeNs    int64                  `json:"end_time_ns"`
	Status       string                 `json:"status"`
	Inputs       map[string]interface{} `json:"inputs"`
	Outputs      map[string]interface{} `json:"outputs"`
	Attributes   map[string]interface{} `json:"attributes"`
}

func (t traceDTO) toModel() models.Trace {
	trace := models.Trace{
		Info: models.TraceInfo{
			TraceID:         t.Info.TraceID,
			ExperimentID:    t.Info.ExperimentID,
			TimestampMs:     t.Info.TimestampMs,
			ExecutionTimeMs: t.Info.ExecutionTimeMs,
			Status:          t.Info.Status,
			RequestID:       t.Info.RequestMetadata["mlflow.trace.request_id"],
		},
		Data: models.TraceData{
			Request:  t.Data.Request,
			Response: t.Data.Response,
		},
	}

	for _, s := range t.Data.Spans {
		trace.Data.Spans = append(trace.Data.Spans, models.Span{
			SpanID:      s.SpanID,
			Name:        s.Name,
			SpanType:    parseSpanType(s.SpanType),
			ParentID:    s.ParentSpanID,
			StartTimeMs: s.StartTimeNs / 1e6,
			EndTimeMs:   s.EndTimeNs / 1e6,
			Status:      s.Status,
			Inputs:      s.Inputs,
			Outputs:     s.Outputs,
			Attributes:  s.Attributes,
		})
	}

	return trace
}

func parseSpanType(s string) models.SpanType {
	switch models.SpanType(strings.ToUpper(s)) {
	case models.SpanTypeLLM, models.SpanTypeChatModel, models.SpanTypeRetriever,
		models.SpanTypeChain, models.SpanTypeAgent, models.SpanTypeTool:
		return models.SpanType(strings.ToUpper(s))
	}
	return models.SpanTypeUnknown
}
