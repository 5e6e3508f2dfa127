package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/maestrohq/maestro/internal/graph"
	"github.com/maestrohq/maestro/internal/worker"
	"github.com/maestrohq/maestro/pkg/models"
)

func diamondPlan() *models.Plan {
	return &models.Plan{
		Title:       "Diamond",
		Description: "A, then B and C in parallel, then D",
		Goals: []*models.Goal{
			{
				ID: "G1", Description: "all",
				Actions: []*models.Action{
					{ID: "G1-A1", Description: "root", Role: models.RoleSearcher, Status: models.StatusPending},
					{ID: "G1-A2", Description: "left", Role: models.RoleSearcher, Status: models.StatusPending, Dependencies: []string{"G1-A1"}},
					{ID: "G1-A3", Description: "right", Role: models.RoleSearcher, Status: models.StatusPending, Dependencies: []string{"G1-A1"}},
					{ID: "G1-A4", Description: "join", Role: models.RoleReporter, Status: models.StatusPending, Dependencies: []string{"G1-A2", "G1-A3"}},
				},
			},
		},
	}
}

func newCoordinator(t *testing.T, plan *models.Plan, w worker.Worker) *Coordinator {
	t.Helper()
	resolver, err := graph.New(plan)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	registry := worker.NewRegistry()
	if err := registry.RegisterAll(w); err != nil {
		t.Fatalf("register: %v", err)
	}
	return New(plan, resolver, registry)
}

func TestCreateExecutionPlan(t *testing.T) {
	c := newCoordinator(t, diamondPlan(), func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		return "done", nil
	})

	execPlan, err := c.CreateExecutionPlan(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if execPlan.PlanID != "Diamond" || execPlan.TotalSteps != 4 || execPlan.MaxParallel != 2 {
		t.Errorf("execution plan fields wrong: %+v", execPlan)
	}
	if len(execPlan.Batches) != 3 {
		t.Errorf("expected 3 batches, got %v", execPlan.Batches)
	}
}

func TestExecuteStepSuccess(t *testing.T) {
	plan := diamondPlan()
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		return "result of " + a.ID, nil
	})

	result := c.ExecuteStep(context.Background(), plan.FindAction("G1-A1"))
	if !result.Success || result.Output != "result of G1-A1" {
		t.Errorf("unexpected result: %+v", result)
	}
	if c.State("G1-A1") != StepCompleted {
		t.Errorf("expected completed state, got %s", c.State("G1-A1"))
	}
}

func TestExecuteStepFailureIsStructured(t *testing.T) {
	plan := diamondPlan()
	workerErr := errors.New("boom")
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		return "", workerErr
	})

	result := c.ExecuteStep(context.Background(), plan.FindAction("G1-A1"))
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !errors.Is(result.Err, workerErr) {
		t.Errorf("expected wrapped worker error, got %v", result.Err)
	}
	if c.State("G1-A1") != StepFailed {
		t.Errorf("expected failed state, got %s", c.State("G1-A1"))
	}
}

func TestExecuteStepReceivesClosure(t *testing.T) {
	plan := diamondPlan()
	var gotIDs []string
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		if a.ID == "G1-A2" {
			for _, g := range sub.Goals {
				for _, act := range g.Actions {
					gotIDs = append(gotIDs, act.ID)
				}
			}
		}
		return "ok", nil
	})

	c.ExecuteStep(context.Background(), plan.FindAction("G1-A1"))
	c.ExecuteStep(context.Background(), plan.FindAction("G1-A2"))

	if len(gotIDs) != 2 || gotIDs[0] != "G1-A1" || gotIDs[1] != "G1-A2" {
		t.Errorf("expected closure {G1-A1, G1-A2}, got %v", gotIDs)
	}
}

func TestRunBatchesExecutesAll(t *testing.T) {
	plan := diamondPlan()
	var mu sync.Mutex
	executed := make(map[string]int)
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		mu.Lock()
		executed[a.ID]++
		// Dependencies must already be complete when a step runs.
		for _, g := range sub.Goals {
			for _, act := range g.Actions {
				if act.ID != a.ID && executed[act.ID] == 0 {
					mu.Unlock()
					return "", errors.New("dependency ran after dependent")
				}
			}
		}
		mu.Unlock()
		return "ok", nil
	})

	results, err := c.RunBatches(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Errorf("step %s failed: %v", r.ActionID, r.Err)
		}
	}

	p := c.Progress()
	if p.Completed != 4 || p.Total != 4 || p.Percent != 100 {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestRunBatchesFailureSkipsDependents(t *testing.T) {
	plan := diamondPlan()
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		if a.ID == "G1-A2" {
			return "", errors.New("left branch failed")
		}
		return "ok", nil
	})

	results, err := c.RunBatches(context.Background(), 2)
	if err != nil {
		t.Fatalf("coordinator must not abort on step failure: %v", err)
	}

	// A1 ok, A2 failed, A3 ok; A4 skipped because A2 never completed.
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
	if c.State("G1-A2") != StepFailed {
		t.Errorf("expected G1-A2 failed, got %s", c.State("G1-A2"))
	}
	if c.State("G1-A4") != StepPending {
		t.Errorf("expected G1-A4 still pending, got %s", c.State("G1-A4"))
	}

	p := c.Progress()
	if p.Completed != 2 || p.Failed != 1 {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestRunBatchesResumeSkipsCompleted(t *testing.T) {
	plan := diamondPlan()
	plan.Goals[0].Actions[0].Status = models.StatusCompleted
	plan.Goals[0].Actions[0].ExecutionResult = "already done"

	var mu sync.Mutex
	var executed []string
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		mu.Lock()
		executed = append(executed, a.ID)
		mu.Unlock()
		return "ok", nil
	})

	if _, err := c.RunBatches(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range executed {
		if id == "G1-A1" {
			t.Error("completed step re-executed on resume")
		}
	}
	if len(executed) != 3 {
		t.Errorf("expected 3 steps executed, got %v", executed)
	}
}

func TestProgressMidExecution(t *testing.T) {
	plan := diamondPlan()
	release := make(chan struct{})
	started := make(chan string, 4)
	c := newCoordinator(t, plan, func(ctx context.Context, a *models.Action, sub *models.Plan) (string, error) {
		started <- a.ID
		<-release
		return "ok", nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.RunBatches(context.Background(), 1)
	}()

	<-started
	p := c.Progress()
	if p.Total != 4 || p.Completed != 0 {
		t.Errorf("unexpected mid-batch progress: %+v", p)
	}
	close(release)
	<-done

	p = c.Progress()
	if p.Completed != 4 {
		t.Errorf("expected all complete, got %+v", p)
	}
}
