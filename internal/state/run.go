package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maestrohq/maestro/pkg/models"
)

// RunStatus represents the status of a plan run.
type RunStatus string

const (
	RunActive      RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// Run represents a single execution of a plan. The plan itself is stored
// as JSON so a half-finished run carries every completed result and can
// be resumed later.
type Run struct {
	ID          string    `json:"id"`
	PlanTitle   string    `json:"plan_title"`
	Status      RunStatus `json:"status"`
	TokenBudget int       `json:"token_budget"`
	MaxParallel int       `json:"max_parallel"`
	Plan        *models.Plan
	Summary     string     `json:"summary"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
}

// NewRun creates a Run for the given plan with a fresh id.
func NewRun(plan *models.Plan, tokenBudget, maxParallel int) *Run {
	return &Run{
		ID:          uuid.New().String(),
		PlanTitle:   plan.Title,
		Status:      RunActive,
		TokenBudget: tokenBudget,
		MaxParallel: maxParallel,
		Plan:        plan,
		StartedAt:   time.Now(),
	}
}

// StepEvent is a persisted progress record for one step transition.
type StepEvent struct {
	RunID     string    `json:"run_id"`
	ActionID  string    `json:"action_id"`
	EventType string    `json:"event_type"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Score     float64   `json:"score"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
}

// Run CRUD operations

// CreateRun persists a new run.
func (db *DB) CreateRun(r *Run) error {
	planJSON, err := json.Marshal(r.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO runs (id, plan_title, status, token_budget, max_parallel, plan_json, summary, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.PlanTitle, string(r.Status), r.TokenBudget, r.MaxParallel, string(planJSON), r.Summary, formatTime(r.StartedAt), nil)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil when no run matches.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, plan_title, status, token_budget, max_parallel, plan_json, summary, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// UpdateRun updates a run, including the current plan snapshot.
func (db *DB) UpdateRun(r *Run) error {
	planJSON, err := json.Marshal(r.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	var finishedAt *string
	if r.FinishedAt != nil {
		s := formatTime(*r.FinishedAt)
		finishedAt = &s
	}

	_, err = db.Exec(`
		UPDATE runs SET plan_title = ?, status = ?, token_budget = ?, max_parallel = ?,
			plan_json = ?, summary = ?, finished_at = ?
		WHERE id = ?
	`, r.PlanTitle, string(r.Status), r.TokenBudget, r.MaxParallel, string(planJSON), r.Summary, finishedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// DeleteRun deletes a run by ID.
func (db *DB) DeleteRun(id string) error {
	_, err := db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// ListRuns lists all runs, optionally filtered by status.
func (db *DB) ListRuns(status *RunStatus) ([]Run, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, plan_title, status, token_budget, max_parallel, plan_json, summary, started_at, finished_at
			FROM runs WHERE status = ? ORDER BY started_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, plan_title, status, token_budget, max_parallel, plan_json, summary, started_at, finished_at
			FROM runs ORDER BY started_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, nil
}

// GetActiveRun returns the most recent run still in progress, if any.
func (db *DB) GetActiveRun() (*Run, error) {
	status := RunActive
	runs, err := db.ListRuns(&status)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// FinishRun marks a run with the given terminal status and summary.
func (db *DB) FinishRun(r *Run, status RunStatus, summary string) error {
	now := time.Now()
	r.Status = status
	r.Summary = summary
	r.FinishedAt = &now
	return db.UpdateRun(r)
}

// scanRun scans one runs row using the given scan function.
func scanRun(scan func(dest ...any) error) (*Run, error) {
	var r Run
	var planJSON string
	var summary sql.NullString
	var startedAt string
	var finishedAt sql.NullString
	if err := scan(&r.ID, &r.PlanTitle, &r.Status, &r.TokenBudget, &r.MaxParallel, &planJSON, &summary, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	plan := &models.Plan{}
	if err := json.Unmarshal([]byte(planJSON), plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	r.Plan = plan
	if summary.Valid {
		r.Summary = summary.String
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

// Step event operations

// RecordStepEvent appends a progress record for a run.
func (db *DB) RecordStepEvent(ev *StepEvent) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO step_events (run_id, action_id, event_type, role, message, score, attempt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.RunID, ev.ActionID, ev.EventType, ev.Role, ev.Message, ev.Score, ev.Attempt, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("record step event: %w", err)
	}
	return nil
}

// ListStepEvents lists all progress records for a run in insertion order.
func (db *DB) ListStepEvents(runID string) ([]StepEvent, error) {
	rows, err := db.Query(`
		SELECT run_id, action_id, event_type, role, message, score, attempt, created_at
		FROM step_events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list step events: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var ev StepEvent
		var role, message sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.RunID, &ev.ActionID, &ev.EventType, &role, &message, &ev.Score, &ev.Attempt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan step event: %w", err)
		}
		if role.Valid {
			ev.Role = role.String
		}
		if message.Valid {
			ev.Message = message.String
		}
		ev.CreatedAt, _ = parseTime(createdAt)
		events = append(events, ev)
	}
	return events, nil
}
