package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/cmdguard"
	"github.com/ppiankov/loopwatch/internal/gate"
)

// Config holds MCP server configuration.
type Config struct {
	SessionID    string
	ProjectDir   string
	GatePath     string
	AuditLogPath string
	Timeout      time.Duration
	Version      string
	// Log receives reload and audit diagnostics. Defaults to stderr, since
	// stdout carries the protocol.
	Log io.Writer
}

// Server exposes gated shell execution to the agent over MCP.
type Server struct {
	mcpServer *mcpsdk.Server
	guard     *cmdguard.Guard
	auditLog  *audit.Log
	sessionID string
	gatePath  string
	log       io.Writer
}

// New creates an MCP server with the gate lists loaded and tools registered.
func New(cfg Config) (*Server, error) {
	g, err := gate.Load(cfg.GatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load gate lists: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	logw := cfg.Log
	if logw == nil {
		logw = os.Stderr
	}

	s := &Server{
		guard: cmdguard.NewGuard(cmdguard.Config{
			Gate:    g,
			Dir:     cfg.ProjectDir,
			Timeout: cfg.Timeout,
		}),
		auditLog:  auditLog,
		sessionID: cfg.SessionID,
		gatePath:  cfg.GatePath,
		log:       logw,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "loopwatch",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run serves MCP on stdio until ctx is cancelled or the client disconnects.
// The gate file, if any, is watched and reloaded on change.
func (s *Server) Run(ctx context.Context) error {
	if s.gatePath != "" {
		r, err := NewReloader(s.gatePath, s.ReloadGate, s.log)
		if err != nil {
			fmt.Fprintf(s.log, "loopwatch mcp: gate hot-reload disabled: %v\n", err)
		} else {
			go r.Run(ctx) //nolint:errcheck // returns only on ctx done
		}
	}
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// ReloadGate re-reads the gate file and swaps it in. On error the current
// lists stay in effect.
func (s *Server) ReloadGate() error {
	g, err := gate.Load(s.gatePath)
	if err != nil {
		return err
	}
	s.guard.SetGate(g)
	return nil
}

// Close closes the audit log if configured.
func (s *Server) Close() error {
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

func (s *Server) recordAudit(tool, command string, d gate.Decision) {
	if s.auditLog == nil {
		return
	}
	err := s.auditLog.Record(audit.Entry{
		SessionID: s.sessionID,
		Source:    audit.SourceMCP,
		Tool:      tool,
		Command:   command,
		Decision:  audit.DecisionString(d.Allowed),
		Reason:    d.Reason,
	})
	if err != nil {
		fmt.Fprintf(s.log, "loopwatch mcp: %v\n", err)
	}
}

// registerTools adds the gated tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolShellExec,
		Description: "Run a shell command in the project directory through the loopwatch command gate. Blocked commands return an error with the reason and the allowed programs.",
	}, s.handleExec)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolGateCheck,
		Description: "Check whether a shell command would be allowed by the loopwatch command gate without running it.",
	}, s.handleCheck)
}
