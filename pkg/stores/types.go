package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus mirrors the engine's run status as stored in the journal.
type RunStatus string

const (
	RunStatusRunning       RunStatus = "running"
	RunStatusSucceeded     RunStatus = "succeeded"
	RunStatusExitedNonZero RunStatus = "exited-non-zero"
	RunStatusFailed        RunStatus = "failed"
	RunStatusCancelled     RunStatus = "cancelled"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one invocation of a task.
type Run struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	Task        string     `json:"task"`
	Status      RunStatus  `json:"status"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Failure     *string    `json:"failure,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunResult is the terminal state recorded by FinishRun.
type RunResult struct {
	Status      RunStatus
	ExitCode    *int
	Failure     *string
	CompletedAt time.Time
}

// StepRecord is a step the engine started during a run.
type StepRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	Container *string   `json:"container,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Event is a journal entry for an event posted during a run.
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Seq       int        `json:"seq"`
	Kind      string     `json:"kind"`
	Container *string    `json:"container,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// RunFilter narrows ListRuns. Nil fields match everything.
type RunFilter struct {
	Project *string
	Task    *string
	Status  *RunStatus
	Limit   int
	Offset  int
}

// EventFilter narrows GetEvents. Nil fields match everything.
type EventFilter struct {
	RunID     *string
	Container *string
	Level     *EventLevel
	Limit     int
	Offset    int
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, id string, result RunResult) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Step operations
	AppendStep(ctx context.Context, step *StepRecord) error
	ListSteps(ctx context.Context, runID string) ([]*StepRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// Health check
	HealthCheck(ctx context.Context) error
}
