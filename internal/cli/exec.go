package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/cmdguard"
	"github.com/ppiankov/loopwatch/internal/gate"
)

var (
	execGate       string
	execProjectDir string
	execAuditLog   string
	execTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execGate, "gate", "", "Path to gate lists YAML (default: built-in lists)")
	execCmd.Flags().StringVar(&execProjectDir, "project-dir", ".", "Directory the command runs in")
	execCmd.Flags().StringVar(&execAuditLog, "audit-log", "", "Record the decision to this audit log")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 5*time.Minute, "Command timeout")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command>",
	Short: "Run a command through the command gate",
	Long:  "Evaluates the command against the gate before running it with sh -c.\nBlocked commands are not executed. Exit code 77 indicates a gate block.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	g, err := gate.Load(execGate)
	if err != nil {
		return err
	}
	guard := cmdguard.NewGuard(cmdguard.Config{Gate: g, Dir: execProjectDir, Timeout: execTimeout})
	command := strings.Join(args, " ")

	var log *audit.Log
	if execAuditLog != "" {
		log, err = audit.Open(execAuditLog)
		if err != nil {
			return err
		}
		defer log.Close()
	}
	record := func(d gate.Decision) {
		if log == nil {
			return
		}
		if err := log.Record(audit.Entry{
			Source:   audit.SourceCLI,
			Tool:     "exec",
			Command:  command,
			Decision: audit.DecisionString(d.Allowed),
			Reason:   d.Reason,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := guard.Run(ctx, command)
	var blocked *cmdguard.BlockedError
	if errors.As(err, &blocked) {
		record(gate.Decision{Reason: blocked.Reason})
		out, _ := json.MarshalIndent(map[string]any{
			"blocked": true,
			"command": blocked.Command,
			"reason":  blocked.Reason,
		}, "", "  ")
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(77)
	}
	record(gate.Decision{Allowed: true})
	if err != nil {
		return err
	}

	fmt.Print(result.Stdout)
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
