package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/config"
)

var (
	rootProjectDir    string
	rootModel         string
	rootMaxIterations int
	rootInitOnly      bool
	rootSkipInit      bool
	rootGate          string
	rootPromptsDir    string
	rootAppSpec       string
	rootNoHistory     bool
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&rootProjectDir, "project-dir", ".", "Project directory the agent works in")
	f.StringVar(&rootModel, "model", config.Defaults().Model, "Claude model to use")
	f.IntVar(&rootMaxIterations, "max-iterations", config.DefaultMaxIterations, "Maximum number of sessions before stopping")
	f.BoolVar(&rootInitOnly, "init-only", false, "Only run initialization (create Linear issues), then exit")
	f.BoolVar(&rootSkipInit, "skip-init", false, "Skip initialization and go straight to coding mode")
	f.StringVar(&rootGate, "gate", "", "Path to gate lists YAML (default: built-in lists)")
	f.StringVar(&rootPromptsDir, "prompts-dir", "", "Directory with prompt template overrides")
	f.StringVar(&rootAppSpec, "app-spec", "", "Application specification file (default: <project-dir>/app_spec.txt)")
	f.BoolVar(&rootNoHistory, "no-history", false, "Do not journal sessions to .loopwatch/history.db")
	rootCmd.MarkFlagsMutuallyExclusive("init-only", "skip-init")
}

var rootCmd = &cobra.Command{
	Use:   "loopwatch",
	Short: "Autonomous coding loop with a command gate",
	Long: "Runs the claude CLI against a project, one fresh session at a time.\n" +
		"The first session turns app_spec.txt into a Linear backlog; every later\n" +
		"session implements the next issue. Every shell command the agent runs\n" +
		"passes through the loopwatch command gate.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runLoop,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
