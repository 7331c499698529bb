package agent

// EventKind tags an Event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventToolUse
	EventToolResult
	EventResult
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventToolUse:
		return "tool_use"
	case EventToolResult:
		return "tool_result"
	case EventResult:
		return "result"
	default:
		return "unknown"
	}
}

// Event is one item in an agent response stream. Which fields are set depends on Kind.
type Event struct {
	Kind EventKind

	// EventText
	Text string

	// EventToolUse
	ToolName  string
	ToolInput map[string]any

	// EventToolResult
	Output  string
	IsError bool

	// EventResult: non-empty when the session ended in failure.
	Err string
}
