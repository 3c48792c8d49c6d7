// Package eventstore provides event sourcing primitives for task tracking.
package eventstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	taskStatusRunning   = "running"
	taskStatusCompleted = "completed"
)

// TaskSummary is a read model summarizing a task's lifecycle, reconstructed
// from its event stream rather than queried from the state store directly.
type TaskSummary struct {
	TaskID       string        `json:"task_id"`
	Project      string        `json:"project,omitempty"`
	Mode         string        `json:"mode,omitempty"`
	Status       string        `json:"status"` // "queued", "running", "completed", "failed", "paused", "cancelled"
	CurrentStep  string        `json:"current_step,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	StepCount    int           `json:"step_count"`
	ErrorStep    string        `json:"error_step,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// TaskHistoryProjection maintains an in-memory view of task history,
// reconstructed from events stored in the event store. It is a read model
// only: the SQLite state store remains the source of truth for scheduling
// decisions, this projection exists for history/status queries and the
// optional NATS fan-out.
type TaskHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	tasks    map[string]*TaskSummary // taskID -> summary
	history  []*TaskSummary          // ordered by start time, newest first
	maxSize  int
	lastSync time.Time
}

// NewTaskHistoryProjection creates a new projection backed by the given store.
func NewTaskHistoryProjection(store Store, maxHistorySize int) *TaskHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &TaskHistoryProjection{
		store:   store,
		tasks:   make(map[string]*TaskSummary),
		history: make([]*TaskSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
// This is typically called at startup, as part of crash recovery.
func (p *TaskHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks = make(map[string]*TaskSummary)
	p.history = make([]*TaskSummary, 0, p.maxSize)

	for _, event := range events {
		p.applyEventLocked(event)
	}

	p.sortHistoryLocked()

	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}

	p.pruneTasksLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection. This is used
// for real-time updates as the scheduler and engine emit events.
func (p *TaskHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *TaskHistoryProjection) applyEventLocked(event Event) {
	taskID := event.TaskID()
	if taskID == "" || taskID == "unknown" {
		return
	}

	summary, exists := p.tasks[taskID]
	if !exists {
		summary = &TaskSummary{
			TaskID:    taskID,
			Status:    taskStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.tasks[taskID] = summary
	}

	switch event.Type() {
	case "TaskCreated":
		var payload struct {
			Project string `json:"project"`
			Mode    string `json:"mode"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Project = payload.Project
			summary.Mode = payload.Mode
		}
		summary.Status = "queued"

	case "TaskStarted":
		summary.StartedAt = event.Timestamp()
		summary.Status = taskStatusRunning

	case "StepStarted":
		var payload struct {
			StepName string `json:"step_name"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.CurrentStep = payload.StepName
		}

	case "StepCompleted":
		summary.StepCount++

	case "TaskPaused":
		summary.Status = "paused"

	case "TaskResumed":
		summary.Status = taskStatusRunning

	case "TaskCancelled":
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		summary.Status = "cancelled"
		p.addToHistoryLocked(summary)

	case "TaskRetried":
		summary.Status = taskStatusRunning
		summary.CompletedAt = nil

	case "TaskCompleted":
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		summary.Status = taskStatusCompleted
		p.addToHistoryLocked(summary)

	case "TaskFailed":
		var payload struct {
			StepName string `json:"step_name"`
			Error    string `json:"error"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.ErrorStep = payload.StepName
			summary.ErrorMessage = payload.Error
		}
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		summary.Status = "failed"
		p.addToHistoryLocked(summary)
	}
}

// addToHistoryLocked adds a terminal task to history if not already present.
func (p *TaskHistoryProjection) addToHistoryLocked(summary *TaskSummary) {
	for _, h := range p.history {
		if h.TaskID == summary.TaskID {
			return
		}
	}

	p.history = append([]*TaskSummary{summary}, p.history...)

	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}

	p.pruneTasksLocked()
}

// pruneTasksLocked removes terminal tasks not present in the bounded history.
// It keeps any tasks that are still running or paused.
// Caller must hold p.mu (write lock).
func (p *TaskHistoryProjection) pruneTasksLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		if h != nil {
			keep[h.TaskID] = struct{}{}
		}
	}

	for id, summary := range p.tasks {
		if summary != nil && (summary.Status == taskStatusRunning || summary.Status == "paused" || summary.Status == "queued") {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.tasks, id)
		}
	}
}

// sortHistoryLocked sorts history by start time, newest first.
func (p *TaskHistoryProjection) sortHistoryLocked() {
	for i := 1; i < len(p.history); i++ {
		for j := i; j > 0 && p.history[j].StartedAt.After(p.history[j-1].StartedAt); j-- {
			p.history[j], p.history[j-1] = p.history[j-1], p.history[j]
		}
	}
}

// GetHistory returns the terminal-task history, newest first.
func (p *TaskHistoryProjection) GetHistory() []*TaskSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*TaskSummary, len(p.history))
	copy(result, p.history)
	return result
}

// GetTask returns the summary for a specific task.
func (p *TaskHistoryProjection) GetTask(taskID string) (*TaskSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.tasks[taskID]
	if !exists {
		return nil, false
	}

	cp := *summary
	return &cp, true
}

// GetRunningTasks returns all currently running tasks.
func (p *TaskHistoryProjection) GetRunningTasks() []*TaskSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var running []*TaskSummary
	for _, summary := range p.tasks {
		if summary.Status == taskStatusRunning {
			cp := *summary
			running = append(running, &cp)
		}
	}
	return running
}

// LastSyncTime returns when the projection was last synchronized from the store.
func (p *TaskHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
