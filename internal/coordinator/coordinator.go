// Package coordinator runs plan steps singly or in bounded-parallel
// batches, tracking per-step status and progress.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/maestrohq/maestro/internal/graph"
	"github.com/maestrohq/maestro/internal/worker"
	"github.com/maestrohq/maestro/pkg/models"
)

// StepState is the coordinator's view of one step.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepCompleted StepState = "completed"
	StepFailed    StepState = "failed"
)

// StepResult is the structured outcome of one step execution. Worker
// failures are captured here rather than propagated, so a single failing
// step never aborts the coordinator.
type StepResult struct {
	// ActionID identifies the step.
	ActionID string
	// Success is false when the worker returned an error.
	Success bool
	// Output is the worker's result text on success.
	Output string
	// Err holds the worker's failure on Success == false.
	Err error
}

// ExecutionPlan is the derived, not persisted, schedule for a plan.
type ExecutionPlan struct {
	// PlanID identifies the plan (its title).
	PlanID string
	// Order is a concrete topological ordering of step ids.
	Order []string
	// Batches partitions Order into parallel-safe groups.
	Batches [][]string
	// TotalSteps is the number of steps scheduled.
	TotalSteps int
	// MaxParallel is the configured parallelism cap.
	MaxParallel int
}

// Progress reports completion counts for a running plan.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	// Percent is Completed over Total, 0-100.
	Percent float64
}

// Coordinator executes steps via the worker registry and tracks status.
// Within a batch each step has exactly one executing goroutine, which is
// the only writer for that step id's state.
type Coordinator struct {
	mu sync.RWMutex
	// plan is the plan under execution.
	plan *models.Plan
	// resolver supplies ordering, batching, and dependency closures.
	resolver *graph.Resolver
	// registry dispatches actions to role handlers.
	registry *worker.Registry
	// states maps step id to its current state.
	states map[string]StepState
	// results maps step id to its latest result.
	results map[string]*StepResult
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a coordinator for a validated plan.
func New(plan *models.Plan, resolver *graph.Resolver, registry *worker.Registry) *Coordinator {
	states := make(map[string]StepState)
	for _, action := range plan.Actions() {
		if action.Status == models.StatusCompleted {
			states[action.ID] = StepCompleted
		} else {
			states[action.ID] = StepPending
		}
	}
	return &Coordinator{
		plan:     plan,
		resolver: resolver,
		registry: registry,
		states:   states,
		results:  make(map[string]*StepResult),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (c *Coordinator) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		c.debugLog = fn
	}
}

// CreateExecutionPlan derives the schedule for the plan: a topological
// order plus parallel-safe batches capped at maxParallel.
func (c *Coordinator) CreateExecutionPlan(maxParallel int) (*ExecutionPlan, error) {
	order, err := c.resolver.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	batches, err := c.resolver.Batches(maxParallel)
	if err != nil {
		return nil, err
	}
	return &ExecutionPlan{
		PlanID:      c.plan.Title,
		Order:       order,
		Batches:     batches,
		TotalSteps:  len(order),
		MaxParallel: maxParallel,
	}, nil
}

// ExecuteStep runs a single action through its role handler. Any worker
// failure, including an unresolvable role, comes back as a structured
// result with Success false; ExecuteStep itself never returns an error
// for worker problems. It does not advance the resolver: the caller
// decides whether a successful result actually completes the step.
func (c *Coordinator) ExecuteStep(ctx context.Context, action *models.Action) *StepResult {
	c.setState(action.ID, StepRunning)
	c.debugLog("[coordinator] executing step %s (%s)", action.ID, action.Role)

	result := c.runWorker(ctx, action)
	if result.Success {
		c.setState(action.ID, StepCompleted)
	} else {
		c.setState(action.ID, StepFailed)
		c.debugLog("[coordinator] step %s failed: %v", action.ID, result.Err)
	}

	c.mu.Lock()
	c.results[action.ID] = result
	c.mu.Unlock()
	return result
}

// runWorker resolves the handler and invokes it with the minimal
// dependency closure for the action.
func (c *Coordinator) runWorker(ctx context.Context, action *models.Action) *StepResult {
	w, err := c.registry.Resolve(action.Role)
	if err != nil {
		return &StepResult{ActionID: action.ID, Err: err}
	}

	subPlan, err := c.resolver.Closure(action.ID)
	if err != nil {
		return &StepResult{ActionID: action.ID, Err: err}
	}

	output, err := w(ctx, action, subPlan)
	if err != nil {
		return &StepResult{ActionID: action.ID, Err: fmt.Errorf("worker execution failed: %w", err)}
	}
	return &StepResult{ActionID: action.ID, Success: true, Output: output}
}

// RunBatches executes the plan batch by batch. Steps within a batch run
// concurrently, each in its own goroutine writing only its own step id.
// A batch starts only after the previous batch has fully finished, which
// subsumes every dependency ordering the resolver produced. Failed steps
// do not stop later batches; their dependents simply never become ready
// and are skipped.
func (c *Coordinator) RunBatches(ctx context.Context, maxParallel int) ([]*StepResult, error) {
	execPlan, err := c.CreateExecutionPlan(maxParallel)
	if err != nil {
		return nil, err
	}

	var all []*StepResult
	for i, batch := range execPlan.Batches {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		c.debugLog("[coordinator] starting batch %d/%d: %v", i+1, len(execPlan.Batches), batch)

		batchResults := make([]*StepResult, len(batch))
		var wg sync.WaitGroup
		for j, id := range batch {
			action := c.plan.FindAction(id)
			if action == nil {
				batchResults[j] = &StepResult{ActionID: id, Err: fmt.Errorf("unknown action %s", id)}
				continue
			}
			if c.State(id) == StepCompleted {
				// Already done on a previous run; resumption skips it.
				continue
			}
			if !c.dependenciesCompleted(id) {
				c.debugLog("[coordinator] skipping %s: dependency failed earlier", id)
				continue
			}

			wg.Add(1)
			go func(j int, action *models.Action) {
				defer wg.Done()
				r := c.ExecuteStep(ctx, action)
				if r.Success {
					c.resolver.MarkComplete(action.ID)
				}
				batchResults[j] = r
			}(j, action)
		}
		wg.Wait()

		for _, r := range batchResults {
			if r != nil {
				all = append(all, r)
			}
		}
	}

	return all, nil
}

// dependenciesCompleted reports whether every dependency of the step has
// completed successfully.
func (c *Coordinator) dependenciesCompleted(id string) bool {
	for _, depID := range c.resolver.Dependencies(id) {
		if c.State(depID) != StepCompleted {
			return false
		}
	}
	return true
}

// State returns the current state for a step id.
func (c *Coordinator) State(id string) StepState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[id]
}

// setState records a step state. Each running step has a single writer.
func (c *Coordinator) setState(id string, state StepState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[id] = state
}

// Result returns the latest result for a step id, or nil.
func (c *Coordinator) Result(id string) *StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results[id]
}

// Progress reports completed and failed counts against the total. It is
// safe to query at any point, including mid-batch.
func (c *Coordinator) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := Progress{Total: len(c.states)}
	for _, state := range c.states {
		switch state {
		case StepCompleted:
			p.Completed++
		case StepFailed:
			p.Failed++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}
