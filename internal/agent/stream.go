package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// streamLine is the envelope of one claude stream-json line.
type streamLine struct {
	Type    string         `json:"type"`
	Subtype string         `json:"subtype"`
	Message *streamMessage `json:"message"`
	IsError bool           `json:"is_error"`
	Result  string         `json:"result"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   map[string]any  `json:"input"`
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"is_error"`
}

// ParseLine decodes one stream-json line into zero or more events.
// Blank lines and envelope types the driver does not act on yield no events.
func ParseLine(line []byte) ([]Event, error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return nil, nil
	}

	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil, fmt.Errorf("malformed stream line: %w", err)
	}

	switch sl.Type {
	case "assistant", "user":
		if sl.Message == nil {
			return nil, nil
		}
		var events []Event
		for _, b := range sl.Message.Content {
			switch b.Type {
			case "text":
				if b.Text != "" {
					events = append(events, Event{Kind: EventText, Text: b.Text})
				}
			case "tool_use":
				events = append(events, Event{Kind: EventToolUse, ToolName: b.Name, ToolInput: b.Input})
			case "tool_result":
				events = append(events, Event{Kind: EventToolResult, Output: resultText(b.Content), IsError: b.IsError})
			}
		}
		return events, nil

	case "result":
		ev := Event{Kind: EventResult}
		if sl.IsError || strings.HasPrefix(sl.Subtype, "error") {
			ev.Err = sl.Result
			if ev.Err == "" {
				ev.Err = sl.Subtype
			}
			if ev.Err == "" {
				ev.Err = "agent reported an error"
			}
		}
		return []Event{ev}, nil

	default:
		return nil, nil
	}
}

// resultText flattens tool_result content, which is either a string or a
// list of typed blocks.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	return string(raw)
}
