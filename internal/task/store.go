package task

import "context"

// ProjectFilter narrows a project listing; zero value lists everything.
type ProjectFilter struct {
	CloneState CloneState // empty matches any state
}

// TaskFilter narrows a task listing; zero value lists everything.
type TaskFilter struct {
	Status TaskStatus // empty matches any status
}

// Store persists projects, the global config singleton, tasks and steps.
// Implementations must provide read-committed isolation per mutation: each
// of the mutation helpers below runs inside one transaction.
type Store interface {
	// GetGlobalConfig returns the singleton row, creating it with zero values
	// on first access.
	GetGlobalConfig(ctx context.Context) (*GlobalConfig, error)
	SaveGlobalConfig(ctx context.Context, cfg *GlobalConfig) error

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error

	// CreateTask materializes a Task in TaskStatusPending along with its
	// Step rows from StepsForMode(mode). Returns errUnknownMode for an
	// unrecognized mode.
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter, limit int) ([]*Task, error)
	ListSteps(ctx context.Context, taskID string) ([]*Step, error)

	// UpdateTask persists the full Task row (engine/scheduler use this after
	// every state transition).
	UpdateTask(ctx context.Context, t *Task) error
	// UpdateStep persists the full Step row.
	UpdateStep(ctx context.Context, s *Step) error

	// Start transitions pending|paused -> pending (scheduler picks up).
	Start(ctx context.Context, taskID string) error
	// Pause transitions running -> paused.
	Pause(ctx context.Context, taskID string) error
	// Resume transitions paused -> pending.
	Resume(ctx context.Context, taskID string) error
	// Cancel transitions any non-terminal status -> cancelled, and marks
	// every pending|running step cancelled.
	Cancel(ctx context.Context, taskID string) error
	// Retry resets steps from fromStep onward (0 means every step) and
	// zeroes the task's progress fields. Refused while running.
	Retry(ctx context.Context, taskID string, fromStep int) error
	// Delete removes a task and its steps. Refused while running.
	Delete(ctx context.Context, taskID string) error
	// CleanupCompleted bulk-deletes every task in a terminal state.
	CleanupCompleted(ctx context.Context) (int, error)

	Close() error
}
