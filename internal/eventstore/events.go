package eventstore

import (
	"encoding/json"
	"time"
)

// TaskCreatedMeta carries the immutable facts recorded when a task is created.
type TaskCreatedMeta struct {
	Project string `json:"project"`
	Mode    string `json:"mode"`
}

// TaskCreated is emitted when a task is created in the queued state.
type TaskCreated struct {
	BaseEvent
	Project string `json:"project"`
	Mode    string `json:"mode"`
}

// NewTaskCreated creates a TaskCreated event.
func NewTaskCreated(taskID string, meta TaskCreatedMeta) (*TaskCreated, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskCreated payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskCreated{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskCreated",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Project: meta.Project,
		Mode:    meta.Mode,
	}, nil
}

// TaskStarted is emitted when the scheduler picks up a task and begins executing its steps.
type TaskStarted struct {
	BaseEvent
	Worker string `json:"worker"`
}

// NewTaskStarted creates a TaskStarted event.
func NewTaskStarted(taskID, worker string) (*TaskStarted, error) {
	payload, err := json.Marshal(map[string]any{"worker": worker})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskStarted payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskStarted{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskStarted",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Worker: worker,
	}, nil
}

// StepStarted is emitted when a step handler begins executing.
type StepStarted struct {
	BaseEvent
	StepName string `json:"step_name"`
	Attempt  int    `json:"attempt"`
}

// NewStepStarted creates a StepStarted event.
func NewStepStarted(taskID, stepName string, attempt int) (*StepStarted, error) {
	payload, err := json.Marshal(map[string]any{
		"step_name": stepName,
		"attempt":   attempt,
	})
	if err != nil {
		return nil, eventStoreError("failed to marshal StepStarted payload").
			WithCause(err).
			WithField("task_id", taskID).
			WithField("step", stepName).
			Build()
	}

	return &StepStarted{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "StepStarted",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		StepName: stepName,
		Attempt:  attempt,
	}, nil
}

// StepCompleted is emitted when a step handler finishes without error.
type StepCompleted struct {
	BaseEvent
	StepName string        `json:"step_name"`
	Duration time.Duration `json:"duration_ms"`
}

// NewStepCompleted creates a StepCompleted event.
func NewStepCompleted(taskID, stepName string, duration time.Duration) (*StepCompleted, error) {
	payload, err := json.Marshal(map[string]any{
		"step_name":   stepName,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		return nil, eventStoreError("failed to marshal StepCompleted payload").
			WithCause(err).
			WithField("task_id", taskID).
			WithField("step", stepName).
			Build()
	}

	return &StepCompleted{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "StepCompleted",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		StepName: stepName,
		Duration: duration,
	}, nil
}

// StepFailed is emitted when a step handler returns an error.
type StepFailed struct {
	BaseEvent
	StepName  string `json:"step_name"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// NewStepFailed creates a StepFailed event.
func NewStepFailed(taskID, stepName string, cause error, retryable bool) (*StepFailed, error) {
	payload, err := json.Marshal(map[string]any{
		"step_name": stepName,
		"error":     cause.Error(),
		"retryable": retryable,
	})
	if err != nil {
		return nil, eventStoreError("failed to marshal StepFailed payload").
			WithCause(err).
			WithField("task_id", taskID).
			WithField("step", stepName).
			Build()
	}

	return &StepFailed{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "StepFailed",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		StepName:  stepName,
		Error:     cause.Error(),
		Retryable: retryable,
	}, nil
}

// TaskPaused is emitted when an operator pauses a running task between steps.
type TaskPaused struct {
	BaseEvent
	Reason string `json:"reason,omitempty"`
}

// NewTaskPaused creates a TaskPaused event.
func NewTaskPaused(taskID, reason string) (*TaskPaused, error) {
	payload, err := json.Marshal(map[string]any{"reason": reason})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskPaused payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskPaused{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskPaused",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Reason: reason,
	}, nil
}

// TaskResumed is emitted when a paused task is handed back to the scheduler.
type TaskResumed struct {
	BaseEvent
}

// NewTaskResumed creates a TaskResumed event.
func NewTaskResumed(taskID string) (*TaskResumed, error) {
	payload, err := json.Marshal(map[string]any{})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskResumed payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskResumed{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskResumed",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
	}, nil
}

// TaskCancelled is emitted when a task is cancelled, whether queued, running, or paused.
type TaskCancelled struct {
	BaseEvent
	Reason string `json:"reason,omitempty"`
}

// NewTaskCancelled creates a TaskCancelled event.
func NewTaskCancelled(taskID, reason string) (*TaskCancelled, error) {
	payload, err := json.Marshal(map[string]any{"reason": reason})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskCancelled payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskCancelled{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskCancelled",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Reason: reason,
	}, nil
}

// TaskRetried is emitted when a failed step is retried from its failure point.
type TaskRetried struct {
	BaseEvent
	FromStep string `json:"from_step"`
}

// NewTaskRetried creates a TaskRetried event.
func NewTaskRetried(taskID, fromStep string) (*TaskRetried, error) {
	payload, err := json.Marshal(map[string]any{"from_step": fromStep})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskRetried payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskRetried{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskRetried",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		FromStep: fromStep,
	}, nil
}

// TaskCompleted is emitted when every step in a task's mode has run successfully.
type TaskCompleted struct {
	BaseEvent
	Duration time.Duration `json:"duration_ms"`
}

// NewTaskCompleted creates a TaskCompleted event.
func NewTaskCompleted(taskID string, duration time.Duration) (*TaskCompleted, error) {
	payload, err := json.Marshal(map[string]any{"duration_ms": duration.Milliseconds()})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskCompleted payload").
			WithCause(err).
			WithField("task_id", taskID).
			Build()
	}

	return &TaskCompleted{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskCompleted",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Duration: duration,
	}, nil
}

// TaskFailed is emitted when a task stops because a step failed permanently
// (non-retryable, or retries exhausted).
type TaskFailed struct {
	BaseEvent
	StepName string `json:"step_name"`
	Error    string `json:"error"`
}

// NewTaskFailed creates a TaskFailed event.
func NewTaskFailed(taskID, stepName, errMsg string) (*TaskFailed, error) {
	payload, err := json.Marshal(map[string]any{
		"step_name": stepName,
		"error":     errMsg,
	})
	if err != nil {
		return nil, eventStoreError("failed to marshal TaskFailed payload").
			WithCause(err).
			WithField("task_id", taskID).
			WithField("step", stepName).
			Build()
	}

	return &TaskFailed{
		BaseEvent: BaseEvent{
			EventTaskID:    taskID,
			EventType:      "TaskFailed",
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		StepName: stepName,
		Error:    errMsg,
	}, nil
}
