package audit

// Decision values recorded in the log.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Sources of gate decisions.
const (
	SourceHook = "hook"
	SourceMCP  = "mcp"
	SourceCLI  = "cli"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are plain strings so json.Marshal field order is deterministic
// and hashes are reproducible.
type Entry struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Tool      string `json:"tool"`
	Command   string `json:"command"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
	PrevHash  string `json:"prev_hash"`
}

// DecisionString maps a gate verdict to the recorded decision value.
func DecisionString(allowed bool) string {
	if allowed {
		return DecisionAllow
	}
	return DecisionDeny
}
