package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/showhn-judge/internal/judge"
)

// extractJSON strips markdown code fences and leading/trailing commentary
// the model sometimes wraps around its JSON answer.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		// Drop the opening fence line (``` or ```json) and the closing fence.
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// Trim anything outside the outermost JSON value.
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return text
	}
	var end int
	if text[start] == '[' {
		end = strings.LastIndex(text, "]")
	} else {
		end = strings.LastIndex(text, "}")
	}
	if end <= start {
		return text
	}
	return text[start : end+1]
}

// parseBatchResponse decodes a batched judge answer: either a bare JSON
// array or an object wrapping one under a "verdicts" key.
func parseBatchResponse(text string) ([]judge.RawVerdict, error) {
	cleaned := extractJSON(text)

	var raws []judge.RawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raws); err == nil {
		return raws, nil
	}

	var wrapper struct {
		Verdicts []judge.RawVerdict `json:"verdicts"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err == nil && wrapper.Verdicts != nil {
		return wrapper.Verdicts, nil
	}

	return nil, fmt.Errorf("%w: response is not a verdict array", judge.ErrInvalidResponse)
}

// parseSingleResponse decodes a single-subject judge answer, accepting
// either a bare object or a one-element array.
func parseSingleResponse(text string) (judge.RawVerdict, error) {
	cleaned := extractJSON(text)

	var raw judge.RawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raw); err == nil {
		return raw, nil
	}

	var raws []judge.RawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raws); err == nil && len(raws) > 0 {
		return raws[0], nil
	}

	return judge.RawVerdict{}, fmt.Errorf("%w: response is not a verdict object", judge.ErrInvalidResponse)
}
