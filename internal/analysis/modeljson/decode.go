package modeljson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode decodes a JSON object out of free-form model output. Models
// frequently wrap JSON in markdown fences or prose; this strips fences and
// scans for the outermost object before unmarshaling. The caller decides what
// to do on failure; the documented policy for discovery stages is to
// substitute an empty result and continue.
func Decode(raw string, v interface{}) error {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	// Fall back to the outermost object when the model added prose around it.
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in model output")
		}
		cleaned = cleaned[start : end+1]
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}

	return nil
}
