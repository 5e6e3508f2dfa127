package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maestrohq/maestro/internal/compression"
	"github.com/maestrohq/maestro/internal/contextmgr"
	"github.com/maestrohq/maestro/internal/coordinator"
	"github.com/maestrohq/maestro/internal/graph"
	"github.com/maestrohq/maestro/internal/llm"
	"github.com/maestrohq/maestro/pkg/models"
)

// Decision is the verdict of a judgment call.
type Decision string

const (
	// DecisionAdvise sends the result back to the same worker role with
	// a critique.
	DecisionAdvise Decision = "advise"
	// DecisionComplete accepts the result and advances the plan.
	DecisionComplete Decision = "complete"
)

// Judgment is the parsed outcome of the review model call.
type Judgment struct {
	Decision   Decision `json:"decision"`
	Suggestion string   `json:"suggestion,omitempty"`
	Score      float64  `json:"score,omitempty"`
	ActionID   string   `json:"action_id,omitempty"`
}

// ErrStepFailed reports that a worker returned a structured failure and
// the run stopped at that action. The plan keeps every completed result,
// so re-running resumes at the failed action.
var ErrStepFailed = errors.New("step execution failed")

// Supervisor reviews each action's result, decides retry versus advance,
// and keeps hand-offs small by replacing the conversation buffer with a
// fresh task summary at every transition.
type Supervisor struct {
	plan     *models.Plan
	resolver *graph.Resolver
	coord    *coordinator.Coordinator
	invoke   llm.Invoker
	ctxmgr   *contextmgr.Manager
	// buffer is the active conversational buffer. It is a value owned by
	// the supervisor and replaced wholesale at each transition, never
	// appended to indefinitely.
	buffer []contextmgr.Message
	// instruction is the leading system message carried across resets.
	instruction string
	// events receives progress notifications when non-nil.
	events chan<- Event
	// observer is called synchronously for each event when non-nil.
	observer func(Event)
	logger   *DebugLogger
}

// Config assembles a Supervisor.
type Config struct {
	Plan        *models.Plan
	Resolver    *graph.Resolver
	Coordinator *coordinator.Coordinator
	Invoke      llm.Invoker
	ContextMgr  *contextmgr.Manager
	// Instruction is the system message preserved across buffer resets.
	Instruction string
	// Events optionally receives progress events; sends never block.
	Events chan<- Event
	// Observer, when non-nil, is called for each event on the run
	// goroutine, before the channel send. The plan is not mutated while
	// it runs, so persistence hooks may snapshot plan state from it.
	Observer func(Event)
	// Logger is optional; nil means no debug logging.
	Logger *DebugLogger
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	instruction := cfg.Instruction
	if instruction == "" {
		instruction = "You are coordinating a multi-step task plan. Work on the current task only."
	}
	return &Supervisor{
		plan:        cfg.Plan,
		resolver:    cfg.Resolver,
		coord:       cfg.Coordinator,
		invoke:      cfg.Invoke,
		ctxmgr:      cfg.ContextMgr,
		instruction: instruction,
		events:      cfg.Events,
		observer:    cfg.Observer,
		logger:      logger,
	}
}

// Buffer returns the current conversational buffer.
func (s *Supervisor) Buffer() []contextmgr.Message {
	return s.buffer
}

// Run drives the plan to completion one action at a time and returns
// the final deliverable. The loop is a plain cooperative driver: it
// suspends inside worker and model calls, and aborting is simply not
// resuming. Already-completed actions are skipped, so calling Run on a
// half-finished plan resumes it.
func (s *Supervisor) Run(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		actionID := s.resolver.NextEligible()
		if actionID == "" {
			s.logger.Log("[supervisor] plan complete")
			s.emit(Event{Type: EventPlanDone, Timestamp: time.Now()})
			return s.plan.Summary(), nil
		}

		if err := s.runAction(ctx, actionID); err != nil {
			return "", err
		}
	}
}

// runAction executes one action through the review loop until the
// judgment accepts it. There is no retry ceiling at this layer; each
// rejection surfaces through an event so the caller can intervene.
func (s *Supervisor) runAction(ctx context.Context, actionID string) error {
	action := s.plan.FindAction(actionID)
	if action == nil {
		return fmt.Errorf("unknown action %s", actionID)
	}

	subPlan, err := s.resolver.Closure(actionID)
	if err != nil {
		return err
	}
	s.resetBuffer(nextStepSummary(action, subPlan))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		action.Status = models.StatusProcessing
		action.Attempts++
		s.logger.Log("[supervisor] dispatching %s to %s (attempt %d)", action.ID, action.Role, action.Attempts)
		s.emit(Event{Type: EventStepStarted, ActionID: action.ID, Role: string(action.Role), Attempt: action.Attempts, Timestamp: time.Now()})

		result := s.coord.ExecuteStep(ctx, action)
		if !result.Success {
			s.emit(Event{Type: EventStepFailed, ActionID: action.ID, Role: string(action.Role), Message: result.Err.Error(), Timestamp: time.Now()})
			return fmt.Errorf("%w: action %s: %v", ErrStepFailed, action.ID, result.Err)
		}

		judgment, err := s.judge(ctx, action, result.Output)
		if err != nil {
			return err
		}

		if judgment.Decision == DecisionAdvise {
			s.logger.Log("[supervisor] %s rejected (score %.2f): %s", action.ID, judgment.Score, judgment.Suggestion)
			s.emit(Event{
				Type: EventStepRejected, ActionID: action.ID, Role: string(action.Role),
				Message: judgment.Suggestion, Score: judgment.Score, Attempt: action.Attempts,
				Timestamp: time.Now(),
			})
			// Same worker role retries with the critique appended as the
			// only extra instruction; the buffer is replaced, not grown.
			s.resetBuffer(nextStepSummary(action, subPlan), retryMessage(judgment))
			action.Details = appendSuggestion(action.Details, judgment.Suggestion)
			continue
		}

		if err := s.plan.SetResult(action.ID, result.Output); err != nil {
			return err
		}
		s.resolver.MarkComplete(action.ID)
		s.logger.Log("[supervisor] %s completed", action.ID)
		s.emit(Event{Type: EventStepCompleted, ActionID: action.ID, Role: string(action.Role), Attempt: action.Attempts, Timestamp: time.Now()})
		return nil
	}
}

// judge submits the result for review and parses the verdict. A
// response that cannot be parsed as a verdict counts as acceptance,
// matching the behavior of a reviewer that answers without choosing a
// tool.
func (s *Supervisor) judge(ctx context.Context, action *models.Action, result string) (*Judgment, error) {
	response, err := s.invoke(ctx, judgmentPrompt(action, result))
	if err != nil {
		return nil, fmt.Errorf("judgment call failed: %w", err)
	}

	judgment, err := ParseJudgment(response)
	if err != nil {
		s.logger.Log("[supervisor] unparsable judgment for %s, accepting result: %v", action.ID, err)
		return &Judgment{Decision: DecisionComplete, ActionID: action.ID}, nil
	}
	return judgment, nil
}

// ParseJudgment decodes a review response, tolerating markdown code
// fences. Unknown decisions are an error.
func ParseJudgment(response string) (*Judgment, error) {
	content := compression.StripCodeFence(response)

	var j Judgment
	if err := json.Unmarshal([]byte(content), &j); err != nil {
		return nil, fmt.Errorf("invalid judgment json: %w", err)
	}
	switch j.Decision {
	case DecisionAdvise, DecisionComplete:
		return &j, nil
	default:
		return nil, fmt.Errorf("unknown judgment decision %q", j.Decision)
	}
}

// resetBuffer replaces the conversation buffer with the instruction
// message plus the given contents, then compacts it to the token budget.
func (s *Supervisor) resetBuffer(contents ...string) {
	buffer := make([]contextmgr.Message, 0, len(contents)+1)
	buffer = append(buffer, contextmgr.Message{Role: contextmgr.RoleSystem, Content: s.instruction})
	for _, content := range contents {
		buffer = append(buffer, contextmgr.Message{Role: contextmgr.RoleUser, Content: content, Name: "supervisor"})
	}
	s.buffer = s.ctxmgr.Compress(buffer)
}

// appendSuggestion folds a rejection critique into the action details so
// the next attempt sees it even through the closure sub-plan.
func appendSuggestion(details, suggestion string) string {
	if suggestion == "" {
		return details
	}
	if details == "" {
		return "Reviewer suggestion: " + suggestion
	}
	return details + "\nReviewer suggestion: " + suggestion
}

// emit notifies the observer and sends the event without blocking.
func (s *Supervisor) emit(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
