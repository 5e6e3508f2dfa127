package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maestrohq/maestro/internal/config"
	"github.com/maestrohq/maestro/internal/graph"
)

var validateMaxParallel int

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Check a plan file without running it",
	Long: `Validate a plan file (YAML or JSON) and preview its execution.

Checks action id formats, dependency references, worker roles, and
dependency cycles, then prints the execution order and the batches of
steps that could run concurrently.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().IntVar(&validateMaxParallel, "max-parallel", 0, "Batch preview width (default from config)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	plan, err := loadPlanFile(args[0])
	if err != nil {
		color.Red("✗ %v", err)
		return err
	}

	resolver, err := graph.New(plan)
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			color.Red("✗ dependency cycle: %s", strings.Join(cycleErr.ActionIDs, " -> "))
		} else {
			color.Red("✗ %v", err)
		}
		return err
	}

	maxParallel := validateMaxParallel
	if maxParallel <= 0 {
		cfg, cerr := config.Load()
		if cerr != nil {
			return cerr
		}
		maxParallel = cfg.Run.MaxParallel
	}

	color.Green("✓ %s", plan.Title)
	fmt.Printf("  %d goals, %d actions\n\n", len(plan.Goals), resolver.Size())

	order, err := resolver.TopologicalOrder()
	if err != nil {
		return err
	}
	fmt.Println("Execution order:")
	for i, id := range order {
		action := plan.FindAction(id)
		fmt.Printf("  %2d. %s (%s) %s\n", i+1, id, action.Role, action.Description)
	}

	batches, err := resolver.Batches(maxParallel)
	if err != nil {
		return err
	}
	fmt.Printf("\nBatches (max %d in parallel):\n", maxParallel)
	for i, batch := range batches {
		fmt.Printf("  %d: %s\n", i+1, strings.Join(batch, ", "))
	}

	return nil
}
