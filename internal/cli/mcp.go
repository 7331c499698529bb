package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/audit"
	lwmcp "github.com/ppiankov/loopwatch/internal/mcp"
)

var (
	mcpSessionID  string
	mcpProjectDir string
	mcpGate       string
	mcpAuditLog   string
	mcpTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpSessionID, "session-id", "", "Agent session id recorded in the audit log")
	mcpCmd.Flags().StringVar(&mcpProjectDir, "project-dir", ".", "Directory commands run in")
	mcpCmd.Flags().StringVar(&mcpGate, "gate", "", "Path to gate lists YAML, hot-reloaded on change")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Audit log path (default: <project-dir>/.loopwatch/audit.jsonl)")
	mcpCmd.Flags().DurationVar(&mcpTimeout, "timeout", 5*time.Minute, "Per-command timeout")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the gated exec MCP server",
	Long:  "Runs loopwatch as an MCP (Model Context Protocol) server over stdio.\nExposes gated tools: shell_exec, gate_check.",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	auditPath := mcpAuditLog
	if auditPath == "" {
		auditPath = audit.DefaultPath(mcpProjectDir)
	}

	srv, err := lwmcp.New(lwmcp.Config{
		SessionID:    mcpSessionID,
		ProjectDir:   mcpProjectDir,
		GatePath:     mcpGate,
		AuditLogPath: auditPath,
		Timeout:      mcpTimeout,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "loopwatch MCP server running on stdio")
	return srv.Run(ctx)
}
