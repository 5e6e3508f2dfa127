// Package models defines the core data types shared across maestro.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionStatus represents the current state of an action.
type ActionStatus string

const (
	// StatusPending indicates the action has not started.
	StatusPending ActionStatus = "pending"
	// StatusWaiting indicates the action is blocked on a dependency.
	StatusWaiting ActionStatus = "waiting"
	// StatusProcessing indicates a worker is executing the action.
	StatusProcessing ActionStatus = "processing"
	// StatusCompleted indicates the action finished and has a result.
	StatusCompleted ActionStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s ActionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusWaiting, StatusProcessing, StatusCompleted:
		return true
	default:
		return false
	}
}

// statusRank orders statuses for the forward-only transition check.
var statusRank = map[ActionStatus]int{
	StatusPending:    0,
	StatusWaiting:    1,
	StatusProcessing: 2,
	StatusCompleted:  3,
}

// CanTransition reports whether a status change is allowed.
// Statuses only move forward, except that processing may re-enter
// processing when the supervisor rejects a result and the same worker
// retries the action.
func (s ActionStatus) CanTransition(to ActionStatus) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if s == StatusProcessing && to == StatusProcessing {
		return true
	}
	return statusRank[to] > statusRank[s]
}

// Role identifies the specialized worker kind that executes an action.
type Role string

const (
	RoleSearcher    Role = "searcher"
	RoleCoder       Role = "coder"
	RoleInterpreter Role = "interpreter"
	RoleReader      Role = "reader"
	RoleWriter      Role = "writer"
	RoleReporter    Role = "reporter"
	RoleThinker     Role = "thinker"
)

// Roles lists every known worker role.
var Roles = []Role{
	RoleSearcher, RoleCoder, RoleInterpreter,
	RoleReader, RoleWriter, RoleReporter, RoleThinker,
}

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// actionIDPattern matches action ids of the form G1-A2.
var actionIDPattern = regexp.MustCompile(`^G\d+-A\d+$`)

// Action is a single unit of work inside a goal.
type Action struct {
	// ID is the action identifier, formatted G{n}-A{m}.
	ID string `json:"id" yaml:"id"`
	// Description states what the action must accomplish.
	Description string `json:"description" yaml:"description"`
	// Role is the worker kind that executes this action.
	Role Role `json:"type" yaml:"type"`
	// Dependencies lists action ids that must complete first.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Details carries free-form guidance for the worker.
	Details string `json:"details,omitempty" yaml:"details,omitempty"`
	// References lists reference ids supplied with the plan.
	References []string `json:"references,omitempty" yaml:"references,omitempty"`
	// Status is the current state of the action.
	Status ActionStatus `json:"status" yaml:"status"`
	// ExecutionResult is set when the action has completed.
	ExecutionResult string `json:"execution_res,omitempty" yaml:"execution_res,omitempty"`
	// Attempts counts how many times a worker has run this action.
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// Goal groups an ordered list of actions under one objective.
type Goal struct {
	// ID is the goal identifier, e.g. G1.
	ID string `json:"id" yaml:"id"`
	// Description states the goal's objective.
	Description string `json:"description" yaml:"description"`
	// Actions is the ordered list of actions for this goal.
	Actions []*Action `json:"actions" yaml:"actions"`
}

// Plan is a hierarchical task decomposition. A plan is owned by the run
// that created it and is mutated only through action status updates.
type Plan struct {
	// Title names the plan; it also keys the artifact directory.
	Title string `json:"title" yaml:"title"`
	// Description summarizes the overall task.
	Description string `json:"description" yaml:"description"`
	// Goals is the ordered list of goals.
	Goals []*Goal `json:"goals" yaml:"goals"`
}

// ValidationError describes a malformed plan.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "invalid plan: " + e.Msg
}

// Validate checks the plan's structural invariants: action ids are unique
// and well-formed, every dependency resolves to an existing action, roles
// are known, and an execution result is present iff the action completed.
// Cycle detection is the resolver's job, not Validate's.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return &ValidationError{Msg: "plan title is empty"}
	}

	seen := make(map[string]bool)
	for _, goal := range p.Goals {
		for _, action := range goal.Actions {
			if !actionIDPattern.MatchString(action.ID) {
				return &ValidationError{Msg: fmt.Sprintf("action id %q does not match G{n}-A{m}", action.ID)}
			}
			if seen[action.ID] {
				return &ValidationError{Msg: fmt.Sprintf("duplicate action id %s", action.ID)}
			}
			seen[action.ID] = true

			if !action.Role.Valid() {
				return &ValidationError{Msg: fmt.Sprintf("action %s has unknown role %q", action.ID, action.Role)}
			}
			if action.Status == "" {
				action.Status = StatusPending
			}
			if !action.Status.Valid() {
				return &ValidationError{Msg: fmt.Sprintf("action %s has unknown status %q", action.ID, action.Status)}
			}
			if action.Status == StatusCompleted && action.ExecutionResult == "" {
				return &ValidationError{Msg: fmt.Sprintf("action %s is completed without a result", action.ID)}
			}
			if action.Status != StatusCompleted && action.ExecutionResult != "" {
				return &ValidationError{Msg: fmt.Sprintf("action %s has a result but status %s", action.ID, action.Status)}
			}
		}
	}

	for _, goal := range p.Goals {
		for _, action := range goal.Actions {
			for _, depID := range action.Dependencies {
				if !seen[depID] {
					return &ValidationError{Msg: fmt.Sprintf("action %s depends on unknown action %s", action.ID, depID)}
				}
				if depID == action.ID {
					return &ValidationError{Msg: fmt.Sprintf("action %s depends on itself", action.ID)}
				}
			}
		}
	}

	return nil
}

// Actions returns every action in declaration order (goals first, then
// actions within each goal).
func (p *Plan) Actions() []*Action {
	var all []*Action
	for _, goal := range p.Goals {
		all = append(all, goal.Actions...)
	}
	return all
}

// FindAction returns the action with the given id, or nil.
func (p *Plan) FindAction(id string) *Action {
	for _, goal := range p.Goals {
		for _, action := range goal.Actions {
			if action.ID == id {
				return action
			}
		}
	}
	return nil
}

// NextAfter returns the action declared immediately after the given id,
// or nil when the id is last or unknown.
func (p *Plan) NextAfter(actionID string) *Action {
	all := p.Actions()
	for i, action := range all {
		if action.ID == actionID && i+1 < len(all) {
			return all[i+1]
		}
	}
	return nil
}

// GoalOf returns the goal that owns the given action id, or nil.
func (p *Plan) GoalOf(actionID string) *Goal {
	for _, goal := range p.Goals {
		for _, action := range goal.Actions {
			if action.ID == actionID {
				return goal
			}
		}
	}
	return nil
}

// Complete returns true once every action has completed.
func (p *Plan) Complete() bool {
	for _, goal := range p.Goals {
		for _, action := range goal.Actions {
			if action.Status != StatusCompleted {
				return false
			}
		}
	}
	return true
}

// SetResult records a completed action's result and marks it completed.
// Completion is forward-only: a completed action's result cannot be
// overwritten.
func (p *Plan) SetResult(actionID, result string) error {
	action := p.FindAction(actionID)
	if action == nil {
		return &ValidationError{Msg: fmt.Sprintf("unknown action %s", actionID)}
	}
	status := action.Status
	if status == "" {
		status = StatusPending
	}
	if !status.CanTransition(StatusCompleted) {
		return &ValidationError{Msg: fmt.Sprintf("action %s cannot move from %s to %s", actionID, status, StatusCompleted)}
	}
	action.ExecutionResult = result
	action.Status = StatusCompleted
	return nil
}

// Summary rolls the plan and every recorded result into a single report,
// used as the final deliverable when the last action completes.
func (p *Plan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n%s\n", p.Title, p.Description)
	for _, goal := range p.Goals {
		fmt.Fprintf(&b, "## Goal %s: %s\n", goal.ID, goal.Description)
		for _, action := range goal.Actions {
			fmt.Fprintf(&b, "### Action %s: %s\n", action.ID, action.Description)
			fmt.Fprintf(&b, "Result: %s\n", action.ExecutionResult)
		}
	}
	return b.String()
}

// PlanFromJSON decodes and validates a plan from JSON bytes.
func PlanFromJSON(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan json: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlanFromYAML decodes and validates a plan from YAML bytes.
func PlanFromYAML(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
