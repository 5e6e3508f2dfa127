package state

import (
	"fmt"
	"time"

	"github.com/maestrohq/maestro/pkg/models"
)

// InterruptedRun contains information about an interrupted run detected on startup.
type InterruptedRun struct {
	RunID          string
	PlanTitle      string
	StartedAt      time.Time
	LastActivity   time.Time
	CompletedSteps int
	TotalSteps     int
}

// RecoveryManager handles detection and recovery of interrupted runs.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted detects any interrupted run on startup. A run still
// marked as running belongs to a process that is no longer here, since a
// clean shutdown always records a terminal status.
// Returns nil if no interrupted run is found.
func (rm *RecoveryManager) CheckForInterrupted() (*InterruptedRun, error) {
	run, err := rm.db.GetActiveRun()
	if err != nil {
		return nil, fmt.Errorf("check active run: %w", err)
	}
	if run == nil {
		return nil, nil
	}

	lastActivity := run.StartedAt
	events, err := rm.db.ListStepEvents(run.ID)
	if err != nil {
		return nil, fmt.Errorf("list step events: %w", err)
	}
	for _, ev := range events {
		if ev.CreatedAt.After(lastActivity) {
			lastActivity = ev.CreatedAt
		}
	}

	completed := 0
	total := 0
	for _, action := range run.Plan.Actions() {
		total++
		if action.Status == models.StatusCompleted {
			completed++
		}
	}

	return &InterruptedRun{
		RunID:          run.ID,
		PlanTitle:      run.PlanTitle,
		StartedAt:      run.StartedAt,
		LastActivity:   lastActivity,
		CompletedSteps: completed,
		TotalSteps:     total,
	}, nil
}

// Resume loads an interrupted run and resets any step left mid-flight so
// it can be dispatched again. Completed steps keep their results.
func (rm *RecoveryManager) Resume(runID string) (*Run, error) {
	run, err := rm.db.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	reset := false
	for _, action := range run.Plan.Actions() {
		if action.Status != models.StatusCompleted && action.Status != models.StatusPending {
			action.Status = models.StatusPending
			reset = true
		}
	}
	if reset {
		if err := rm.db.UpdateRun(run); err != nil {
			return nil, fmt.Errorf("reset run %s: %w", runID, err)
		}
	}

	return run, nil
}

// Clean marks an interrupted run as interrupted without resuming it.
func (rm *RecoveryManager) Clean(runID string) error {
	run, err := rm.db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	if err := rm.db.FinishRun(run, RunInterrupted, run.Summary); err != nil {
		return fmt.Errorf("mark run interrupted: %w", err)
	}
	return nil
}
