package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Multi-agent plan coordinator",
	Long: `Maestro executes structured task plans with specialized model-backed
workers, one reviewed step at a time.

A plan is a set of goals, each broken into actions with explicit
dependencies. Maestro resolves the dependency graph, dispatches each
action to the worker role it names, reviews every result before
accepting it, and compresses bulky outputs into on-disk artifacts so
the conversation stays within its token budget.

Core capabilities:
- Validates plans and detects dependency cycles before running
- Dispatches actions to specialized worker roles in dependency order
- Reviews every result; rejected steps retry with the critique attached
- Archives raw outputs and injects compact summaries instead
- Persists run state so interrupted plans resume where they stopped`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
