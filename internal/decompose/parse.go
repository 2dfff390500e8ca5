package decompose

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"
)

var ErrParse = errors.New("failed to parse AI response")

var (
	jsonFence  = regexp.MustCompile("(?s)```json\\r?\\n(.*?)\\r?\\n```")
	plainFence = regexp.MustCompile("(?s)```\\r?\\n(.*?)\\r?\\n```")
)

// Suggestion is one subtask proposed by the model.
type Suggestion struct {
	Title            string  `json:"title"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
}

func (s Suggestion) Minutes() int {
	return int(math.Floor(s.EstimatedMinutes + 0.5))
}

// ParseSubtasks extracts the subtask array from a completion. A ```json fenced block is
// preferred, then a bare ``` block, then the whole text. A null or empty array is a parse
// failure.
func ParseSubtasks(content string) ([]Suggestion, error) {
	payload := content
	if m := jsonFence.FindStringSubmatch(content); m != nil {
		payload = m[1]
	} else if m := plainFence.FindStringSubmatch(content); m != nil {
		payload = m[1]
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &suggestions); err != nil {
		return nil, ErrParse
	}

	if len(suggestions) == 0 {
		return nil, ErrParse
	}

	for _, s := range suggestions {
		if strings.TrimSpace(s.Title) == "" || s.EstimatedMinutes < 0 {
			return nil, ErrParse
		}
	}

	return suggestions, nil
}
