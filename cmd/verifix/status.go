package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/verifix-dev/verifix/internal/state"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent repair runs",
	Long: `Display recent repair runs recorded in the project history database
(.verifix/state.db): terminal state, final score, rounds, and duration.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No repair history. Run 'verifix repair <artifact>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate history db: %w", err)
	}

	runs, err := db.RecentRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No repair history yet.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %-17s %-26s %2d rounds  %2d trials  %s  %s\n",
			run.FinishedAt.Local().Format("2006-01-02 15:04"),
			renderState(run.State),
			run.Score,
			run.Rounds, run.TrialCount,
			run.Elapsed.Round(time.Second),
			run.Artifact)
	}
	return nil
}

func renderState(s string) string {
	switch s {
	case "VERIFIED":
		return color.GreenString("%-17s", s)
	case "STOPPED":
		return color.CyanString("%-17s", s)
	default:
		return color.YellowString("%-17s", s)
	}
}
