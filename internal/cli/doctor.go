package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/config"
	"github.com/ppiankov/loopwatch/internal/gate"
	"github.com/ppiankov/loopwatch/internal/prompt"
	"github.com/ppiankov/loopwatch/internal/state"
)

var doctorProjectDir string

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProjectDir, "project-dir", ".", "Project directory")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check readiness before starting the loop",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	_, _ = config.LoadDotEnv(".", doctorProjectDir)

	cfg := config.Defaults()
	cfg.ProjectDir = doctorProjectDir
	file, fileErr := config.LoadFile(cfg.ProjectDir)
	cfg.Merge(file, func(string) bool { return false })
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Resolve(); err != nil {
		return err
	}

	var checks []checkResult

	// 1. Project directory.
	if info, err := os.Stat(cfg.ProjectDir); err == nil && info.IsDir() {
		checks = append(checks, checkResult{label: "project directory", ok: true, detail: cfg.ProjectDir})
	} else {
		checks = append(checks, checkResult{label: "project directory", detail: cfg.ProjectDir + " not found", fix: "mkdir -p " + cfg.ProjectDir})
	}

	// 2. Settings file.
	if fileErr != nil {
		checks = append(checks, checkResult{label: "settings file", detail: fileErr.Error()})
	} else {
		checks = append(checks, checkResult{label: "settings file", ok: true, detail: "ok"})
	}

	// 3. claude binary.
	if path, err := exec.LookPath(cfg.ClaudeBin); err == nil {
		checks = append(checks, checkResult{label: "claude binary", ok: true, detail: path})
	} else {
		checks = append(checks, checkResult{label: "claude binary", detail: cfg.ClaudeBin + " not on PATH", fix: "npm install -g @anthropic-ai/claude-code"})
	}

	// 4. Credentials.
	if missing := config.MissingEnv(os.Getenv); len(missing) == 0 {
		checks = append(checks, checkResult{label: "credentials", ok: true, detail: "LINEAR_API_KEY set"})
	} else {
		checks = append(checks, checkResult{label: "credentials", detail: fmt.Sprintf("missing %v", missing), fix: "export LINEAR_API_KEY=your-value"})
	}

	// 5. Gate lists.
	if g, err := gate.Load(cfg.GateFile); err == nil {
		checks = append(checks, checkResult{label: "gate lists", ok: true, detail: fmt.Sprintf("%d allowed, %d blocked patterns", len(g.Allowed()), len(g.Blocklist()))})
	} else {
		checks = append(checks, checkResult{label: "gate lists", detail: err.Error()})
	}

	// 6. App spec, needed only before initialization.
	initialized, _ := state.NewFileStore(cfg.ProjectDir, projectName).Initialized()
	specPath := prompt.Loader{Dir: cfg.PromptsDir, AppSpecPath: cfg.AppSpec}.ResolveAppSpec(cfg.ProjectDir)
	if _, err := os.Stat(specPath); err == nil {
		checks = append(checks, checkResult{label: "app spec", ok: true, detail: specPath})
	} else if initialized {
		checks = append(checks, checkResult{label: "app spec", ok: true, detail: "not needed (project initialized)"})
	} else {
		checks = append(checks, checkResult{label: "app spec", detail: specPath + " not found", fix: "write the application spec to " + specPath})
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
