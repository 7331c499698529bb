package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/cmdguard"
	"github.com/ppiankov/loopwatch/internal/gate"
	"github.com/ppiankov/loopwatch/internal/hook"
)

// Tool names as registered on the server.
const (
	ToolShellExec = "shell_exec"
	ToolGateCheck = "gate_check"
)

// ExecInput defines parameters for the shell_exec tool.
type ExecInput struct {
	Command string `json:"command" jsonschema:"shell command line to run with sh -c"`
}

// ExecOutput contains the result of command execution or block details.
type ExecOutput struct {
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	ExitCode  int    `json:"exit_code"`
	Truncated bool   `json:"truncated,omitempty"`
	Redacted  int    `json:"redacted,omitempty"`
	Blocked   bool   `json:"blocked,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// CheckInput defines parameters for the gate_check tool.
type CheckInput struct {
	Command string `json:"command" jsonschema:"shell command line to evaluate"`
}

// CheckOutput contains the gate decision.
type CheckOutput struct {
	Decision    string   `json:"decision"`
	Reason      string   `json:"reason,omitempty"`
	BaseCommand string   `json:"base_command,omitempty"`
	Allowed     []string `json:"allowed_commands,omitempty"`
}

// --- Handlers ---

func (s *Server) handleExec(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	result, err := s.guard.Run(ctx, input.Command)

	var blocked *cmdguard.BlockedError
	if errors.As(err, &blocked) {
		d := gate.Decision{Reason: blocked.Reason}
		s.recordAudit(ToolShellExec, input.Command, d)
		reason := hook.DenyReason(d, s.guard.Gate().Allowed())
		return errorResult(reason), ExecOutput{Blocked: true, Reason: reason}, nil
	}
	s.recordAudit(ToolShellExec, input.Command, gate.Decision{Allowed: true})
	if err != nil {
		return nil, ExecOutput{}, err
	}

	return nil, ExecOutput{
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
		ExitCode:  result.ExitCode,
		Truncated: result.StdoutTruncated || result.StderrTruncated,
		Redacted:  result.Redacted,
	}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	g := s.guard.Gate()
	d := g.Evaluate(input.Command)

	out := CheckOutput{
		Decision:    audit.DecisionString(d.Allowed),
		Reason:      d.Reason,
		BaseCommand: gate.BaseCommand(input.Command),
	}
	if !d.Allowed {
		out.Allowed = g.Allowed()
	}
	return nil, out, nil
}

func errorResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
