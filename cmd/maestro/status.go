package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maestrohq/maestro/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and their progress",
	Long: `Display the state of recent plan runs.

Shows:
  - Any interrupted run that can be resumed
  - Recent runs with status and step progress
  - Per-step events for the most recent run`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs yet. Run 'maestro run <plan-file>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	rm := state.NewRecoveryManager(db)
	interrupted, err := rm.CheckForInterrupted()
	if err != nil {
		return err
	}
	if interrupted != nil {
		color.Yellow("Interrupted run: %s (%s)", interrupted.RunID, interrupted.PlanTitle)
		fmt.Printf("  Progress: %d/%d steps, last activity %s\n", interrupted.CompletedSteps,
			interrupted.TotalSteps, interrupted.LastActivity.Local().Format(time.RFC822))
		fmt.Printf("  Resume with: maestro run --resume %s\n\n", interrupted.RunID)
	}

	runs, err := db.ListRuns(nil)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet. Run 'maestro run <plan-file>' to start.")
		return nil
	}

	fmt.Println("Recent runs:")
	for i, r := range runs {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(runs)-10)
			break
		}

		completed := 0
		total := 0
		for _, action := range r.Plan.Actions() {
			total++
			if action.ExecutionResult != "" {
				completed++
			}
		}

		statusStr := string(r.Status)
		switch r.Status {
		case state.RunCompleted:
			statusStr = color.GreenString(statusStr)
		case state.RunFailed:
			statusStr = color.RedString(statusStr)
		case state.RunActive, state.RunInterrupted:
			statusStr = color.YellowString(statusStr)
		}
		fmt.Printf("  %s  %-11s %d/%d  %s  %s\n", r.ID[:8], statusStr, completed, total,
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.PlanTitle)
	}

	// Step detail for the most recent run.
	latest := runs[0]
	events, err := db.ListStepEvents(latest.ID)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Printf("\nLatest run (%s):\n", latest.ID[:8])
		for _, ev := range events {
			line := fmt.Sprintf("  %s %s %s", ev.CreatedAt.Local().Format("15:04:05"), ev.ActionID, ev.EventType)
			if ev.Message != "" {
				line += ": " + ev.Message
			}
			fmt.Println(line)
		}
	}

	return nil
}
