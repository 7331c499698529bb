package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/audit"
)

var (
	tailLines      int
	replaySession  string
	replayDecision string
	replayFormat   string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditReplayCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditReplayCmd.Flags().StringVar(&replaySession, "session", "", "Only entries from this agent session")
	auditReplayCmd.Flags().StringVar(&replayDecision, "decision", "", "Only allow or deny entries")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained log of gate decisions.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay <path>",
	Short: "Render gate decisions as a timeline",
	Long:  "Reads the audit log, filters by session and decision,\nand renders a decision timeline with a summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditReplay,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	entries, err := audit.Tail(args[0], tailLines)
	if err != nil {
		return err
	}
	for _, e := range entries {
		out, _ := json.MarshalIndent(e, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	switch replayDecision {
	case "", audit.DecisionAllow, audit.DecisionDeny:
	default:
		return fmt.Errorf("invalid --decision %q (want allow or deny)", replayDecision)
	}

	result, err := audit.Replay(args[0], audit.ReplayFilter{
		SessionID: replaySession,
		Decision:  replayDecision,
	})
	if err != nil {
		return err
	}

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(result))
	}
	return nil
}
