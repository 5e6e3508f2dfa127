// Package graph resolves action dependencies for plan scheduling.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maestrohq/maestro/pkg/models"
)

// CycleError indicates the dependency relation admits no valid ordering.
// ActionIDs lists the actions that could not be ordered.
type CycleError struct {
	ActionIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency among actions: %s", strings.Join(e.ActionIDs, ", "))
}

// Resolver is a directed acyclic dependency graph over a plan's actions.
// Actions are nodes; edges point from an action to the actions it depends on.
type Resolver struct {
	mu sync.RWMutex
	// plan is the owning plan; never mutated by the resolver.
	plan *models.Plan
	// nodes maps action id to the action itself.
	nodes map[string]*models.Action
	// edges maps action id to the ids it depends on.
	edges map[string][]string
	// order records declaration order for deterministic tie-breaking.
	order map[string]int
	// completed tracks which actions have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New builds a resolver from a validated plan. Returns an error if a
// dependency references an unknown action or the graph contains a cycle;
// cycle detection happens here, before any execution begins.
func New(plan *models.Plan) (*Resolver, error) {
	r := &Resolver{
		plan:      plan,
		nodes:     make(map[string]*models.Action),
		edges:     make(map[string][]string),
		order:     make(map[string]int),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {},
	}

	idx := 0
	for _, action := range plan.Actions() {
		r.nodes[action.ID] = action
		r.edges[action.ID] = nil
		r.order[action.ID] = idx
		idx++
		if action.Status == models.StatusCompleted {
			r.completed[action.ID] = true
		}
	}

	for _, action := range plan.Actions() {
		for _, depID := range action.Dependencies {
			if _, exists := r.nodes[depID]; !exists {
				return nil, fmt.Errorf("action %s depends on unknown action %s", action.ID, depID)
			}
			r.edges[action.ID] = append(r.edges[action.ID], depID)
		}
	}

	if _, err := r.TopologicalOrder(); err != nil {
		return nil, err
	}

	return r, nil
}

// SetDebugLog sets the debug logging function.
func (r *Resolver) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.debugLog = fn
	}
}

// TopologicalOrder returns action ids in an order where every dependency
// precedes its dependents, using a zero-in-degree sweep. Ties among
// simultaneously eligible actions break by declaration order, so the
// result is deterministic for a fixed plan. Returns a *CycleError naming
// the unorderable actions if no such order exists.
func (r *Resolver) TopologicalOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topologicalOrderLocked()
}

// topologicalOrderLocked assumes the lock is held.
func (r *Resolver) topologicalOrderLocked() ([]string, error) {
	// in-degree counts how many unresolved dependencies each action has.
	inDegree := make(map[string]int, len(r.nodes))
	for id := range r.nodes {
		inDegree[id] = len(r.edges[id])
	}
	// dependents is the reverse adjacency: dep id -> ids that wait on it.
	dependents := make(map[string][]string, len(r.nodes))
	for id, deps := range r.edges {
		for _, depID := range deps {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var eligible []string
	for id, deg := range inDegree {
		if deg == 0 {
			eligible = append(eligible, id)
		}
	}
	r.sortByDeclaration(eligible)

	result := make([]string, 0, len(r.nodes))
	for len(eligible) > 0 {
		id := eligible[0]
		eligible = eligible[1:]
		result = append(result, id)

		var unlocked []string
		for _, depID := range dependents[id] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				unlocked = append(unlocked, depID)
			}
		}
		if len(unlocked) > 0 {
			eligible = append(eligible, unlocked...)
			r.sortByDeclaration(eligible)
		}
	}

	if len(result) != len(r.nodes) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		r.sortByDeclaration(stuck)
		return nil, &CycleError{ActionIDs: stuck}
	}

	return result, nil
}

// Batches partitions the topological order into parallel-safe batches.
// Every action in a batch has all its dependencies in earlier batches,
// and a batch never exceeds maxParallel actions; overflow defers to the
// next batch even when otherwise eligible.
func (r *Resolver) Batches(maxParallel int) ([][]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if maxParallel < 1 {
		maxParallel = 1
	}

	order, err := r.topologicalOrderLocked()
	if err != nil {
		return nil, err
	}

	// batchOf maps action id to the batch index it was placed in.
	batchOf := make(map[string]int, len(order))
	var batches [][]string

	for _, id := range order {
		// The action must land strictly after every dependency's batch.
		minBatch := 0
		for _, depID := range r.edges[id] {
			if b, ok := batchOf[depID]; ok && b+1 > minBatch {
				minBatch = b + 1
			}
		}
		// Defer past full batches.
		for minBatch < len(batches) && len(batches[minBatch]) >= maxParallel {
			minBatch++
		}
		for len(batches) <= minBatch {
			batches = append(batches, nil)
		}
		batches[minBatch] = append(batches[minBatch], id)
		batchOf[id] = minBatch
	}

	r.debugLog("[graph.Batches] %d actions into %d batches (maxParallel=%d)", len(order), len(batches), maxParallel)
	return batches, nil
}

// Closure returns the minimal sub-plan for the given action: the action
// itself plus everything it transitively depends on, grouped by owning
// goal in plan order, with prior execution results carried along.
// Deterministic and idempotent for a fixed plan.
func (r *Resolver) Closure(actionID string) (*models.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.nodes[actionID]; !exists {
		return nil, fmt.Errorf("unknown action %s", actionID)
	}

	// Collect the reachable set over dependency edges, target inclusive.
	include := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if include[id] {
			return
		}
		include[id] = true
		for _, depID := range r.edges[id] {
			walk(depID)
		}
	}
	walk(actionID)

	sub := &models.Plan{
		Title:       r.plan.Title,
		Description: r.plan.Description,
	}
	for _, goal := range r.plan.Goals {
		var actions []*models.Action
		for _, action := range goal.Actions {
			if include[action.ID] {
				clone := *action
				clone.Dependencies = append([]string(nil), action.Dependencies...)
				clone.References = append([]string(nil), action.References...)
				actions = append(actions, &clone)
			}
		}
		if len(actions) > 0 {
			sub.Goals = append(sub.Goals, &models.Goal{
				ID:          goal.ID,
				Description: goal.Description,
				Actions:     actions,
			})
		}
	}

	return sub, nil
}

// Ready returns ids of actions whose dependencies are all complete and
// that are not themselves complete, in declaration order.
func (r *Resolver) Ready() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ready []string
	for id := range r.nodes {
		if r.completed[id] {
			continue
		}
		satisfied := true
		for _, depID := range r.edges[id] {
			if !r.completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	r.sortByDeclaration(ready)
	r.debugLog("[graph.Ready] %d ready actions: %v", len(ready), ready)
	return ready
}

// NextEligible returns the first incomplete action in topological order,
// or empty string when the plan is finished. Used by the supervisor to
// pick the next hand-off target; resuming a half-finished plan lands on
// the first incomplete action with no special casing.
func (r *Resolver) NextEligible() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, err := r.topologicalOrderLocked()
	if err != nil {
		return ""
	}
	for _, id := range order {
		if !r.completed[id] {
			return id
		}
	}
	return ""
}

// MarkComplete records an action as completed, affecting Ready and
// NextEligible.
func (r *Resolver) MarkComplete(actionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[actionID] = true
	r.debugLog("[graph.MarkComplete] action %s complete", actionID)
}

// Dependencies returns the ids the given action depends on.
func (r *Resolver) Dependencies(actionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edges[actionID]
}

// Dependents returns the ids of actions that depend on the given action.
func (r *Resolver) Dependents(actionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dependents []string
	for id, deps := range r.edges {
		for _, depID := range deps {
			if depID == actionID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	r.sortByDeclaration(dependents)
	return dependents
}

// Size returns the number of actions in the graph.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// sortByDeclaration orders ids by their position in the plan.
func (r *Resolver) sortByDeclaration(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return r.order[ids[i]] < r.order[ids[j]]
	})
}
