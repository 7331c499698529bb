// Package hook implements the claude PreToolUse hook that gates Bash
// commands before the agent runs them.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/gate"
)

// EventPreToolUse is the only hook event handled.
const EventPreToolUse = "PreToolUse"

// Input is the JSON claude writes to the hook's stdin.
type Input struct {
	SessionID     string         `json:"session_id"`
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	Cwd           string         `json:"cwd"`
}

// Command returns tool_input.command, or "" when absent.
func (in Input) Command() string {
	s, _ := in.ToolInput["command"].(string)
	return s
}

// Output is the JSON the hook writes to stdout.
type Output struct {
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries the permission decision.
type SpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// Handler judges tool calls.
type Handler struct {
	Gate *gate.Gate
	// Audit is optional.
	Audit *audit.Log
	// Warn receives non-fatal problems such as audit write failures.
	Warn io.Writer
}

// Decide returns the response for one tool call. Tools other than Bash get
// an empty response, which leaves the decision to claude.
func (h *Handler) Decide(in Input) Output {
	if in.ToolName != "Bash" {
		return Output{}
	}

	g := h.Gate
	if g == nil {
		g = gate.NewDefault()
	}
	cmd := in.Command()
	d := g.Evaluate(cmd)

	if h.Audit != nil {
		err := h.Audit.Record(audit.Entry{
			SessionID: in.SessionID,
			Source:    audit.SourceHook,
			Tool:      in.ToolName,
			Command:   cmd,
			Decision:  audit.DecisionString(d.Allowed),
			Reason:    d.Reason,
		})
		if err != nil && h.Warn != nil {
			fmt.Fprintf(h.Warn, "loopwatch hook: %v\n", err)
		}
	}

	out := &SpecificOutput{HookEventName: EventPreToolUse}
	if d.Allowed {
		out.PermissionDecision = "allow"
	} else {
		out.PermissionDecision = "deny"
		out.PermissionDecisionReason = DenyReason(d, g.Allowed())
	}
	return Output{HookSpecificOutput: out}
}

// Handle reads one Input from r and writes the Output to w.
func (h *Handler) Handle(r io.Reader, w io.Writer) error {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decode hook input: %w", err)
	}
	if in.HookEventName != "" && in.HookEventName != EventPreToolUse {
		return writeJSON(w, Output{})
	}
	return writeJSON(w, h.Decide(in))
}

// DenyReason is the text the agent sees for a denied command.
func DenyReason(d gate.Decision, allowed []string) string {
	return fmt.Sprintf("Command blocked: %s. Allowed commands: %s", d.Reason, strings.Join(allowed, ", "))
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
