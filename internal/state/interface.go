// Package state provides SQLite-based run persistence for Maestro.
package state

import "io"

// RunStore handles run-related persistence operations.
type RunStore interface {
	CreateRun(r *Run) error
	GetRun(id string) (*Run, error)
	UpdateRun(r *Run) error
	ListRuns(status *RunStatus) ([]Run, error)
	GetActiveRun() (*Run, error)
	FinishRun(r *Run, status RunStatus, summary string) error
}

// EventStore handles step event persistence operations.
type EventStore interface {
	RecordStepEvent(ev *StepEvent) error
	ListStepEvents(runID string) ([]StepEvent, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for run persistence.
// This interface allows the run driver to work with any state backend
// without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type StateStore interface {
	io.Closer
	Migrator
	RunStore
	EventStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ RunStore   = (*DB)(nil)
	_ EventStore = (*DB)(nil)
)
