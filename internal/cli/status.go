package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/state"
)

var (
	statusProjectDir string
	statusSkipInit   bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusProjectDir, "project-dir", ".", "Project directory")
	statusCmd.Flags().BoolVar(&statusSkipInit, "skip-init", false, "Report the mode a --skip-init run would pick")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project state and the mode the next session would run in",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(statusProjectDir)
	if err != nil {
		return err
	}
	path := state.MarkerPath(dir)
	ps, err := state.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("Project: %s\n", dir)
	if ps.Initialized {
		fmt.Printf("Marker:  %s (present)\n", path)
		if ps.Project != "" {
			fmt.Printf("  project:        %s\n", ps.Project)
		}
		if ps.InitializedAt != "" {
			fmt.Printf("  initialized_at: %s\n", ps.InitializedAt)
		}
	} else {
		fmt.Printf("Marker:  %s (absent)\n", path)
	}

	mode := "CODING"
	if !statusSkipInit && !ps.Initialized {
		mode = "INITIALIZER"
	}
	fmt.Printf("Next session mode: %s\n", mode)
	return nil
}
