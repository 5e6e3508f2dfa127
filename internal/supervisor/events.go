package supervisor

import "time"

// EventType represents the type of supervisor event.
type EventType string

const (
	// EventStepStarted indicates a worker began executing an action.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates the supervisor accepted an action's result.
	EventStepCompleted EventType = "step_completed"
	// EventStepRejected indicates the judgment sent the action back for retry.
	EventStepRejected EventType = "step_rejected"
	// EventStepFailed indicates the worker returned a structured failure.
	EventStepFailed EventType = "step_failed"
	// EventPlanDone indicates every action has completed.
	EventPlanDone EventType = "plan_done"
)

// Event is emitted as the supervisor advances the plan. Events feed
// progress display; the run does not depend on anyone consuming them.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// ActionID is the id of the related action, if applicable.
	ActionID string
	// Role is the worker role for the action, if applicable.
	Role string
	// Message provides additional context about the event.
	Message string
	// Score carries the judgment score on rejection events.
	Score float64
	// Attempt is the attempt number for the action.
	Attempt int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
