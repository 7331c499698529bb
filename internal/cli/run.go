package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/agent"
	"github.com/ppiankov/loopwatch/internal/audit"
	"github.com/ppiankov/loopwatch/internal/config"
	"github.com/ppiankov/loopwatch/internal/console"
	"github.com/ppiankov/loopwatch/internal/history"
	"github.com/ppiankov/loopwatch/internal/loop"
	"github.com/ppiankov/loopwatch/internal/prompt"
	"github.com/ppiankov/loopwatch/internal/session"
	"github.com/ppiankov/loopwatch/internal/state"
)

// projectName is written into the marker file.
const projectName = "loopwatch"

// resolveConfig builds the run configuration.
// Precedence: explicit flag, then .loopwatch.yaml, then defaults. Credentials
// come from the environment after .env files are loaded.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Defaults()
	cfg.ProjectDir = rootProjectDir
	cfg.Model = rootModel
	cfg.MaxIterations = rootMaxIterations
	cfg.InitOnly = rootInitOnly
	cfg.SkipInit = rootSkipInit
	cfg.GateFile = rootGate
	cfg.PromptsDir = rootPromptsDir
	cfg.AppSpec = rootAppSpec

	if _, err := config.LoadDotEnv(".", cfg.ProjectDir); err != nil {
		return cfg, err
	}

	file, err := config.LoadFile(cfg.ProjectDir)
	if err != nil {
		return cfg, err
	}
	cfg.Merge(file, func(name string) bool { return cmd.Flags().Changed(name) })
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Resolve(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	if missing := config.MissingEnv(os.Getenv); len(missing) > 0 {
		fmt.Print(config.MissingEnvMessage(missing))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := console.New(os.Stdout)
	store := state.NewFileStore(cfg.ProjectDir, projectName)
	initialized, err := store.Initialized()
	if err != nil {
		return fmt.Errorf("read project state: %w", err)
	}
	printStartBanner(out, cfg, initialized)

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate loopwatch executable: %w", err)
	}

	sessions := agent.SessionConfig{
		ClaudeBin:    cfg.ClaudeBin,
		Model:        cfg.Model,
		ProjectDir:   cfg.ProjectDir,
		LinearAPIKey: cfg.LinearAPIKey,
		LinearMCPURL: cfg.LinearMCPURL,
		SelfBin:      self,
		GateFile:     cfg.GateFile,
		AuditPath:    audit.DefaultPath(cfg.ProjectDir),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl := &loop.Controller{
		ProjectDir: cfg.ProjectDir,
		Store:      store,
		Runner:     &session.Runner{NewClient: agent.NewFactory(sessions), Out: os.Stdout},
		Prompts:    prompt.Loader{Dir: cfg.PromptsDir, AppSpecPath: cfg.AppSpec},
		Out:        out,
	}

	if !rootNoHistory {
		db, err := history.Open(ctx, history.DefaultPath(cfg.ProjectDir))
		if err != nil {
			out.Warn("history disabled: %v", err)
		} else {
			defer db.Close()
			ctrl.Journal = db
		}
	}

	summary, err := ctrl.Run(ctx, loop.Options{
		MaxIterations: cfg.MaxIterations,
		InitOnly:      cfg.InitOnly,
		SkipInit:      cfg.SkipInit,
	})
	if err != nil {
		return reportFatal(out, err)
	}
	if summary.Interrupted {
		out.Println("\nInterrupted by user. Exiting...")
	}
	return nil
}

// reportFatal prints a loop failure for the operator and passes it on.
func reportFatal(out *console.Printer, err error) error {
	out.Fail("Fatal error: %v", err)
	return err
}

func printStartBanner(out *console.Printer, cfg config.Config, initialized bool) {
	out.Section(
		out.Paint("loopwatch - autonomous development loop", console.Bold),
	)
	out.Printf("Project: %s\n", cfg.ProjectDir)
	out.Printf("Model: %s\n", cfg.Model)
	out.Printf("Max iterations: %d\n", cfg.MaxIterations)
	if cfg.GateFile != "" {
		out.Printf("Gate lists: %s\n", cfg.GateFile)
	}
	out.Println()
	switch {
	case cfg.SkipInit:
		out.Println("Skip-init mode - going straight to coding")
	case !initialized:
		out.Println("First run detected - will create Linear issues from the app spec")
	default:
		out.Println("Continuing development - will pick up next Todo issue")
	}
	out.Rule()
}
