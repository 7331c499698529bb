package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/gate"
)

var checkGate string

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkGate, "gate", "", "Path to gate lists YAML (default: built-in lists)")
}

var checkCmd = &cobra.Command{
	Use:   "check [flags] -- <command>",
	Short: "Evaluate a command against the gate without running it",
	Long:  "Prints the gate decision as JSON. Exit code 77 indicates the command is blocked.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

type checkOutput struct {
	Command     string `json:"command"`
	BaseCommand string `json:"base_command,omitempty"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	g, err := gate.Load(checkGate)
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	d := g.Evaluate(command)

	out, _ := json.MarshalIndent(checkOutput{
		Command:     command,
		BaseCommand: gate.BaseCommand(command),
		Decision:    audit.DecisionString(d.Allowed),
		Reason:      d.Reason,
	}, "", "  ")
	fmt.Println(string(out))

	if !d.Allowed {
		os.Exit(77)
	}
	return nil
}
