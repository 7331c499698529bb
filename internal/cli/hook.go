package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/gate"
	"github.com/ppiankov/loopwatch/internal/hook"
)

var (
	hookProjectDir string
	hookGate       string
	hookAuditLog   string
)

func init() {
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(hookPreToolUseCmd)
	hookPreToolUseCmd.Flags().StringVar(&hookProjectDir, "project-dir", ".", "Project directory")
	hookPreToolUseCmd.Flags().StringVar(&hookGate, "gate", "", "Path to gate lists YAML (default: built-in lists)")
	hookPreToolUseCmd.Flags().StringVar(&hookAuditLog, "audit-log", "", "Audit log path (default: <project-dir>/.loopwatch/audit.jsonl)")
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Claude hook handlers",
}

var hookPreToolUseCmd = &cobra.Command{
	Use:   "pre-tool-use",
	Short: "Gate a Bash tool call (claude PreToolUse hook)",
	Long: "Reads the PreToolUse hook JSON from stdin and answers with a permission\n" +
		"decision on stdout. Bash commands are evaluated by the command gate and\n" +
		"recorded to the audit log; other tools are left to claude.\n\n" +
		"Exit code 2 on unreadable input, which claude treats as a block.",
	Args: cobra.NoArgs,
	RunE: runHookPreToolUse,
}

func runHookPreToolUse(cmd *cobra.Command, args []string) error {
	g, err := gate.Load(hookGate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loopwatch hook: %v\n", err)
		os.Exit(2)
	}

	auditPath := hookAuditLog
	if auditPath == "" {
		auditPath = audit.DefaultPath(hookProjectDir)
	}

	h := &hook.Handler{Gate: g, Warn: os.Stderr}
	if log, err := audit.Open(auditPath); err != nil {
		fmt.Fprintf(os.Stderr, "loopwatch hook: audit disabled: %v\n", err)
	} else {
		defer log.Close()
		h.Audit = log
	}

	if err := h.Handle(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "loopwatch hook: %v\n", err)
		os.Exit(2)
	}
	return nil
}
