package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"salonflow/models"
)

// ErrUnknownAction marks a model output whose action is outside the closed
// command set. Such output is never executed.
var ErrUnknownAction = errors.New("unknown action")

// ParseCommand decodes a model response into a Command. Markdown code
// fences around the JSON are tolerated; anything that is not a JSON object
// with a known action is rejected.
func ParseCommand(raw string) (*models.Command, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var cmd models.Command
	if err := json.Unmarshal([]byte(cleaned), &cmd); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}
	if !models.KnownCommand(cmd.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Kind)
	}
	if cmd.Kind == models.CommandReply && strings.TrimSpace(cmd.Text) == "" {
		return nil, errors.New("reply command with empty text")
	}
	return &cmd, nil
}
