package ai

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseArguments decodes streamed tool-call arguments. Models regularly emit
// truncated or slightly invalid JSON; such text is repaired before giving up
// and returning an empty map. The result is never nil.
func ParseArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return map[string]any{}
	}
	repaired := map[string]any{}
	if err := json.Unmarshal([]byte(fixed), &repaired); err != nil {
		return map[string]any{}
	}
	return repaired
}
