package analysis

import (
	"encoding/json"
	"fmt"
)

// decodeStored unmarshals a stored structured-analysis artifact.
func decodeStored(data string, v interface{}) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to parse stored analysis: %w", err)
	}
	return nil
}
