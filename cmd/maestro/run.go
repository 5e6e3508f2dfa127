package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maestrohq/maestro/internal/compression"
	"github.com/maestrohq/maestro/internal/config"
	"github.com/maestrohq/maestro/internal/contextmgr"
	"github.com/maestrohq/maestro/internal/coordinator"
	"github.com/maestrohq/maestro/internal/graph"
	"github.com/maestrohq/maestro/internal/llm"
	"github.com/maestrohq/maestro/internal/state"
	"github.com/maestrohq/maestro/internal/supervisor"
	"github.com/maestrohq/maestro/internal/worker"
	"github.com/maestrohq/maestro/pkg/models"
)

var (
	runResumeID    string
	runTokenBudget int
	runMaxParallel int
	runArtifactDir string
	runNoCompress  bool
	runDebugLog    string
)

var runCmd = &cobra.Command{
	Use:   "run [plan-file]",
	Short: "Execute a plan with reviewed worker steps",
	Long: `Execute a plan file (YAML or JSON) with model-backed workers.

Each action is dispatched to the worker role it names, in dependency
order. Every result is reviewed before it is accepted: a rejected step
retries with the reviewer's critique attached. Raw worker outputs are
archived under the artifact directory and replaced in the conversation
by compact summaries.

Run state is persisted in the project database (.maestro/state.db), so
an interrupted run can be picked up later:

  maestro run plan.yaml          # start a new run
  maestro run --resume <run-id>  # continue an interrupted run
  maestro status                 # list runs and find resumable ids`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "Resume an interrupted run by id")
	runCmd.Flags().IntVar(&runTokenBudget, "token-budget", 0, "Context window budget in tokens (default from config)")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Maximum concurrent independent steps (default from config)")
	runCmd.Flags().StringVar(&runArtifactDir, "artifacts", "", "Artifact directory (default from config)")
	runCmd.Flags().BoolVar(&runNoCompress, "no-compress", false, "Keep raw worker outputs in the conversation")
	runCmd.Flags().StringVar(&runDebugLog, "debug-log", "", "Write a timestamped debug log to this file")
}

// loadPlanFile decodes a plan from a YAML or JSON file and validates it.
func loadPlanFile(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var plan *models.Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		plan, err = models.PlanFromJSON(data)
	default:
		plan, err = models.PlanFromYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	if runResumeID == "" && len(args) == 0 {
		return fmt.Errorf("a plan file or --resume <run-id> is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runTokenBudget > 0 {
		cfg.Run.TokenBudget = runTokenBudget
	}
	if runMaxParallel > 0 {
		cfg.Run.MaxParallel = runMaxParallel
	}
	if runArtifactDir != "" {
		cfg.Compression.ArtifactRoot = runArtifactDir
	}
	if runNoCompress {
		cfg.Compression.Enabled = false
	}
	if runDebugLog != "" {
		cfg.Run.DebugLog = runDebugLog
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Either resume an interrupted run or start a fresh one.
	var run *state.Run
	if runResumeID != "" {
		rm := state.NewRecoveryManager(db)
		run, err = rm.Resume(runResumeID)
		if err != nil {
			return err
		}
		fmt.Printf("Resuming run %s (%s)\n", run.ID, run.PlanTitle)
	} else {
		plan, err := loadPlanFile(args[0])
		if err != nil {
			return err
		}
		run = state.NewRun(plan, cfg.Run.TokenBudget, cfg.Run.MaxParallel)
		if err := db.CreateRun(run); err != nil {
			return err
		}
		fmt.Printf("Starting run %s (%s)\n", run.ID, run.PlanTitle)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	summary, err := executeRun(ctx, cfg, db, run)
	switch {
	case err == nil:
		if ferr := db.FinishRun(run, state.RunCompleted, summary); ferr != nil {
			return ferr
		}
		color.Green("\nPlan completed.")
		fmt.Println()
		fmt.Println(summary)
		return nil
	case errors.Is(err, context.Canceled):
		// Leave the run marked running so recovery spots it.
		if uerr := db.UpdateRun(run); uerr != nil {
			return uerr
		}
		fmt.Printf("Run %s interrupted. Resume with: maestro run --resume %s\n", run.ID, run.ID)
		return nil
	default:
		if ferr := db.FinishRun(run, state.RunFailed, ""); ferr != nil {
			return ferr
		}
		return fmt.Errorf("run failed: %w", err)
	}
}

// executeRun wires the resolver, workers, and supervisor together and
// drives the plan to completion.
func executeRun(ctx context.Context, cfg *config.Config, db *state.DB, run *state.Run) (string, error) {
	resolver, err := graph.New(run.Plan)
	if err != nil {
		return "", err
	}

	apiKey, err := config.GetAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseAWSBedrock {
		return "", err
	}
	client, err := llm.NewClient(llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		MaxTokens:     int64(cfg.Anthropic.MaxTokens),
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return "", fmt.Errorf("create model client: %w", err)
	}
	invoke := client.Invoker()

	var logger *supervisor.DebugLogger
	if cfg.Run.DebugLog != "" {
		logger, err = supervisor.NewDebugLogger(cfg.Run.DebugLog)
		if err != nil {
			return "", err
		}
		defer logger.Close()
	}

	store := compression.NewStore(cfg.Compression.ArtifactRoot)
	comp := compression.NewService(invoke, store, cfg.Compression.Enabled)
	if logger != nil {
		comp.SetDebugLog(logger.Log)
	}

	registry := worker.NewRegistry()
	if err := worker.RegisterLLMWorkers(registry, invoke, comp); err != nil {
		return "", err
	}

	coord := coordinator.New(run.Plan, resolver, registry)
	if logger != nil {
		coord.SetDebugLog(logger.Log)
	}

	events := make(chan supervisor.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeEvents(events)
	}()

	sup := supervisor.New(supervisor.Config{
		Plan:        run.Plan,
		Resolver:    resolver,
		Coordinator: coord,
		Invoke:      invoke,
		ContextMgr:  contextmgr.New(cfg.Run.TokenBudget),
		Events:      events,
		// Persistence runs on the supervisor's goroutine so the plan
		// snapshot is never marshaled while a step is mutating it.
		Observer: func(ev supervisor.Event) { persistEvent(db, run, ev) },
		Logger:   logger,
	})

	summary, err := sup.Run(ctx)
	close(events)
	<-done
	return summary, err
}

// consumeEvents prints run progress.
func consumeEvents(events <-chan supervisor.Event) {
	for ev := range events {
		switch ev.Type {
		case supervisor.EventStepStarted:
			if ev.Attempt > 1 {
				fmt.Printf("  %s %s (%s) attempt %d\n", color.CyanString("▶"), ev.ActionID, ev.Role, ev.Attempt)
			} else {
				fmt.Printf("  %s %s (%s)\n", color.CyanString("▶"), ev.ActionID, ev.Role)
			}
		case supervisor.EventStepCompleted:
			fmt.Printf("  %s %s\n", color.GreenString("✓"), ev.ActionID)
		case supervisor.EventStepRejected:
			fmt.Printf("  %s %s rejected (score %.2f): %s\n", color.YellowString("↻"), ev.ActionID, ev.Score, ev.Message)
		case supervisor.EventStepFailed:
			fmt.Printf("  %s %s failed: %s\n", color.RedString("✗"), ev.ActionID, ev.Message)
		case supervisor.EventPlanDone:
			// Final summary is printed by the caller.
		}
	}
}

// persistEvent records the event and, after a step settles, refreshes
// the stored plan snapshot so resume sees progress. It is called on the
// supervisor's goroutine, between step mutations.
func persistEvent(db *state.DB, run *state.Run, ev supervisor.Event) {
	record := &state.StepEvent{
		RunID:     run.ID,
		ActionID:  ev.ActionID,
		EventType: string(ev.Type),
		Role:      ev.Role,
		Message:   ev.Message,
		Score:     ev.Score,
		Attempt:   ev.Attempt,
		CreatedAt: ev.Timestamp,
	}
	if err := db.RecordStepEvent(record); err != nil {
		fmt.Fprintf(os.Stderr, "warning: record event: %v\n", err)
	}
	if ev.Type == supervisor.EventStepCompleted || ev.Type == supervisor.EventStepFailed {
		if err := db.UpdateRun(run); err != nil {
			fmt.Fprintf(os.Stderr, "warning: update run: %v\n", err)
		}
	}
}
