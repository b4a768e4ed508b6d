package discovery

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"tracelens/internal/models"
)

// DefaultTokenBudget bounds the trace-digest portion of the exhaustive
// mapping prompt.
const DefaultTokenBudget = 12000

// tokenCounter counts prompt tokens, falling back to a bytes/4 estimate when
// the encoding cannot be loaded (tiktoken fetches encodings lazily).
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenCounter{}
	}
	return &tokenCounter{encoding: enc}
}

func (t *tokenCounter) count(text string) int {
	if t.encoding == nil {
		return len(text) / 4
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// extractRequestText returns the best-effort user request of a trace. The
// top-level data.request field wins; otherwise span inputs are scanned for
// conversational or plain-content shapes.
func extractRequestText(t *models.Trace) string {
	if t.Data.Request != "" {
		return t.Data.Request
	}
	for _, s := range t.Data.Spans {
		if text := textFromPayload(s.Inputs); text != "" {
			return text
		}
	}
	return ""
}

// extractResponseText returns the best-effort agent response of a trace.
func extractResponseText(t *models.Trace) string {
	if t.Data.Response != "" {
		return t.Data.Response
	}
	// Prefer the last span with usable output, which is usually the final answer.
	for i := len(t.Data.Spans) - 1; i >= 0; i-- {
		if text := textFromPayload(t.Data.Spans[i].Outputs); text != "" {
			return text
		}
	}
	return ""
}

// textFromPayload pulls human-readable text out of a span input/output map.
// Handles chat-message lists, plain content keys, and tool-call strings.
func textFromPayload(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}

	if msgs, ok := payload["messages"].([]interface{}); ok && len(msgs) > 0 {
		// Last message is the most recent turn.
		if m, ok := msgs[len(msgs)-1].(map[string]interface{}); ok {
			if content, ok := m["content"].(string); ok && content != "" {
				return content
			}
		}
	}

	for _, key := range []string{"content", "query", "question", "input", "prompt", "response", "output", "result"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}

	return ""
}

// traceDigest renders one trace as a compact text block for mapping prompts,
// carrying the ID, timing, status, tool names, and truncated request/response.
func traceDigest(t *models.Trace) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trace_id: %s\n", t.Info.TraceID)
	fmt.Fprintf(&b, "  status: %s, execution_time_ms: %d\n", t.Info.Status, t.Info.ExecutionTimeMs)

	var tools []string
	for _, s := range t.ToolSpans() {
		entry := NormalizeToolName(s.Name)
		if s.Status != "" && !strings.EqualFold(s.Status, "OK") {
			entry += "(" + s.Status + ")"
		}
		tools = append(tools, entry)
	}
	if len(tools) > 0 {
		fmt.Fprintf(&b, "  tools: %s\n", strings.Join(tools, ", "))
	}

	if req := extractRequestText(t); req != "" {
		fmt.Fprintf(&b, "  request: %s\n", truncate(req, 300))
	}
	if resp := extractResponseText(t); resp != "" {
		fmt.Fprintf(&b, "  response: %s\n", truncate(resp, 300))
	}

	return b.String()
}

// buildDigests renders all traces as digests, dropping trailing traces once
// the token budget is spent. Returns the digest block and how many traces
// made it in.
func buildDigests(traces []models.Trace, budget int, counter *tokenCounter) (string, int) {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	var b strings.Builder
	used := 0
	included := 0
	for i := range traces {
		d := traceDigest(&traces[i])
		cost := counter.count(d)
		if used+cost > budget && included > 0 {
			break
		}
		b.WriteString(d)
		b.WriteString("\n")
		used += cost
		included++
	}

	return b.String(), included
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
