package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loopwatch/internal/history"
)

var (
	historyProjectDir string
	historyLimit      int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyProjectDir, "project-dir", ".", "Project directory")
	historyCmd.Flags().IntVarP(&historyLimit, "lines", "n", 20, "Number of sessions to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent agent sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := history.DefaultPath(historyProjectDir)
	if _, err := os.Stat(path); err != nil {
		fmt.Println("No sessions recorded.")
		return nil
	}

	ctx := context.Background()
	db, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	fmt.Print(history.FormatTable(records))
	return nil
}
