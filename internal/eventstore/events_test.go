package eventstore

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const testTaskID = "task-123"

func TestEventSerialization(t *testing.T) {
	taskID := testTaskID

	tests := []struct {
		name      string
		createFn  func() (Event, error)
		eventType string
	}{
		{
			name: "TaskCreated",
			createFn: func() (Event, error) {
				return NewTaskCreated(taskID, TaskCreatedMeta{Project: "widget-tools", Mode: "normal"})
			},
			eventType: "TaskCreated",
		},
		{
			name: "TaskStarted",
			createFn: func() (Event, error) {
				return NewTaskStarted(taskID, "worker-1")
			},
			eventType: "TaskStarted",
		},
		{
			name: "StepStarted",
			createFn: func() (Event, error) {
				return NewStepStarted(taskID, "pull_latest", 1)
			},
			eventType: "StepStarted",
		},
		{
			name: "StepCompleted",
			createFn: func() (Event, error) {
				return NewStepCompleted(taskID, "pull_latest", 50*time.Millisecond)
			},
			eventType: "StepCompleted",
		},
		{
			name: "StepFailed",
			createFn: func() (Event, error) {
				return NewStepFailed(taskID, "push_branch", errors.New("remote rejected push"), true)
			},
			eventType: "StepFailed",
		},
		{
			name: "TaskPaused",
			createFn: func() (Event, error) {
				return NewTaskPaused(taskID, "operator requested")
			},
			eventType: "TaskPaused",
		},
		{
			name: "TaskResumed",
			createFn: func() (Event, error) {
				return NewTaskResumed(taskID)
			},
			eventType: "TaskResumed",
		},
		{
			name: "TaskCancelled",
			createFn: func() (Event, error) {
				return NewTaskCancelled(taskID, "superseded by newer task")
			},
			eventType: "TaskCancelled",
		},
		{
			name: "TaskRetried",
			createFn: func() (Event, error) {
				return NewTaskRetried(taskID, "push_branch")
			},
			eventType: "TaskRetried",
		},
		{
			name: "TaskCompleted",
			createFn: func() (Event, error) {
				return NewTaskCompleted(taskID, 5*time.Second)
			},
			eventType: "TaskCompleted",
		},
		{
			name: "TaskFailed",
			createFn: func() (Event, error) {
				return NewTaskFailed(taskID, "dispatch_build", "crp rejected release")
			},
			eventType: "TaskFailed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := tt.createFn()
			if err != nil {
				t.Fatalf("failed to create event: %v", err)
			}

			if event.TaskID() != taskID {
				t.Errorf("expected task_id %s, got %s", taskID, event.TaskID())
			}
			if event.Type() != tt.eventType {
				t.Errorf("expected event_type %s, got %s", tt.eventType, event.Type())
			}
			if event.Timestamp().IsZero() {
				t.Error("timestamp should not be zero")
			}

			payload := event.Payload()
			if len(payload) == 0 {
				t.Error("payload should not be empty")
			}

			var data map[string]any
			if err := json.Unmarshal(payload, &data); err != nil {
				t.Errorf("failed to unmarshal payload: %v", err)
			}
		})
	}
}

func TestTaskCreatedFields(t *testing.T) {
	taskID := testTaskID
	meta := TaskCreatedMeta{Project: "widget-tools", Mode: "changelog_only"}

	event, err := NewTaskCreated(taskID, meta)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if event.Project != meta.Project {
		t.Errorf("expected project %s, got %s", meta.Project, event.Project)
	}
	if event.Mode != meta.Mode {
		t.Errorf("expected mode %s, got %s", meta.Mode, event.Mode)
	}
}

func TestStepFailedFields(t *testing.T) {
	taskID := testTaskID
	stepName := "create_review"
	cause := errors.New("forge returned 502")

	event, err := NewStepFailed(taskID, stepName, cause, true)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if event.StepName != stepName {
		t.Errorf("expected step_name %s, got %s", stepName, event.StepName)
	}
	if event.Error != cause.Error() {
		t.Errorf("expected error %s, got %s", cause.Error(), event.Error)
	}
	if !event.Retryable {
		t.Error("expected retryable to be true")
	}
}

func TestTaskFailedFields(t *testing.T) {
	taskID := testTaskID
	stepName := "dispatch_build"
	errMsg := "crp rejected release"

	event, err := NewTaskFailed(taskID, stepName, errMsg)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if event.StepName != stepName {
		t.Errorf("expected step_name %s, got %s", stepName, event.StepName)
	}
	if event.Error != errMsg {
		t.Errorf("expected error %s, got %s", errMsg, event.Error)
	}
}
