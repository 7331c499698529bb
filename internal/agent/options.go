package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultLinearMCPURL is Linear's hosted MCP endpoint.
const DefaultLinearMCPURL = "https://mcp.linear.app/mcp"

// GateServerName is the MCP server name of the gated exec server.
const GateServerName = "loopwatch"

// DefaultAllowedTools is the tool set a session may use.
var DefaultAllowedTools = []string{
	// files
	"Read",
	"Write",
	"Edit",
	"Glob",
	"Grep",
	"LS",

	// shell, gated by the PreToolUse hook
	"Bash",

	"GitDiff",
	"GitLog",
	"GitStatus",

	"TodoWrite",
	"Task",

	// issue tracker
	"mcp__linear__list_issues",
	"mcp__linear__get_issue",
	"mcp__linear__create_issue",
	"mcp__linear__update_issue",
	"mcp__linear__list_teams",
	"mcp__linear__list_projects",
	"mcp__linear__create_project",
	"mcp__linear__create_comment",
	"mcp__linear__list_issue_statuses",

	// gated exec
	"mcp__" + GateServerName + "__shell_exec",
	"mcp__" + GateServerName + "__gate_check",
}

// MCPServer is one entry of the claude --mcp-config file.
type MCPServer struct {
	Type    string            `json:"type"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
}

// HookCommand is a single command hook.
type HookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// HookMatcher binds hooks to the tools whose names match Matcher.
type HookMatcher struct {
	Matcher string        `json:"matcher"`
	Hooks   []HookCommand `json:"hooks"`
}

// Settings is the subset of claude settings the driver writes.
type Settings struct {
	Hooks map[string][]HookMatcher `json:"hooks"`
}

// Options configures one claude CLI session.
type Options struct {
	Bin          string
	Model        string
	ProjectDir   string
	SessionID    string
	AllowedTools []string
	MCPServers   map[string]MCPServer
	Settings     Settings
}

// SessionConfig holds what every session of a loop shares. NewSession turns it
// into per-session Options.
type SessionConfig struct {
	ClaudeBin    string
	Model        string
	ProjectDir   string
	LinearAPIKey string
	LinearMCPURL string

	// SelfBin is the loopwatch executable that serves the hook and the gated
	// exec server. Empty disables both.
	SelfBin   string
	GateFile  string
	AuditPath string
}

// NewSession builds Options for a session with the given id.
func (c SessionConfig) NewSession(sessionID string) Options {
	opts := Options{
		Bin:          c.ClaudeBin,
		Model:        c.Model,
		ProjectDir:   c.ProjectDir,
		SessionID:    sessionID,
		AllowedTools: append([]string(nil), DefaultAllowedTools...),
		MCPServers:   map[string]MCPServer{},
		Settings:     Settings{Hooks: map[string][]HookMatcher{}},
	}
	if opts.Bin == "" {
		opts.Bin = "claude"
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}

	if c.LinearAPIKey != "" {
		url := c.LinearMCPURL
		if url == "" {
			url = DefaultLinearMCPURL
		}
		opts.MCPServers["linear"] = MCPServer{
			Type: "http",
			URL:  url,
			Headers: map[string]string{
				"Authorization": "Bearer " + c.LinearAPIKey,
				"Content-Type":  "application/json",
			},
		}
	}

	if c.SelfBin != "" {
		common := []string{"--project-dir", c.ProjectDir}
		if c.GateFile != "" {
			common = append(common, "--gate", c.GateFile)
		}
		if c.AuditPath != "" {
			common = append(common, "--audit-log", c.AuditPath)
		}

		opts.MCPServers[GateServerName] = MCPServer{
			Type:    "stdio",
			Command: c.SelfBin,
			Args:    append([]string{"mcp", "--session-id", sessionID}, common...),
		}

		hookArgs := append([]string{c.SelfBin, "hook", "pre-tool-use"}, common...)
		opts.Settings.Hooks["PreToolUse"] = []HookMatcher{{
			Matcher: "Bash",
			Hooks: []HookCommand{{
				Type:    "command",
				Command: shellJoin(hookArgs),
				Timeout: 30,
			}},
		}}
	}

	return opts
}

// writeConfigFiles writes the MCP config and settings files into dir and
// returns their paths. The MCP config may carry credentials, so both files
// are private to the user.
func (o Options) writeConfigFiles(dir string) (mcpPath, settingsPath string, err error) {
	mcpData, err := json.MarshalIndent(map[string]any{"mcpServers": o.MCPServers}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal mcp config: %w", err)
	}
	settingsData, err := json.MarshalIndent(o.Settings, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal settings: %w", err)
	}

	mcpPath = filepath.Join(dir, "mcp.json")
	settingsPath = filepath.Join(dir, "settings.json")
	if err := os.WriteFile(mcpPath, mcpData, 0o600); err != nil {
		return "", "", fmt.Errorf("write mcp config: %w", err)
	}
	if err := os.WriteFile(settingsPath, settingsData, 0o600); err != nil {
		return "", "", fmt.Errorf("write settings: %w", err)
	}
	return mcpPath, settingsPath, nil
}

// args builds the claude command line. The prompt goes on stdin.
func (o Options) args(mcpPath, settingsPath string) []string {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--model", o.Model,
	}
	if o.SessionID != "" {
		args = append(args, "--session-id", o.SessionID)
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if mcpPath != "" {
		args = append(args, "--mcp-config", mcpPath)
	}
	if settingsPath != "" {
		args = append(args, "--settings", settingsPath)
	}
	return args
}

// shellJoin quotes args for a POSIX shell command string.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
