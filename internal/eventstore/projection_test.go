package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTaskHistoryProjection_ApplyEvents(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewTaskHistoryProjection(store, 10)

	taskID := "task-123"
	createEvent, err := NewTaskCreated(taskID, TaskCreatedMeta{Project: "widget-tools", Mode: "normal"})
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(createEvent)

	startEvent, err := NewTaskStarted(taskID, "worker-1")
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(startEvent)

	summary, exists := projection.GetTask(taskID)
	if !exists {
		t.Fatal("Expected task to exist")
	}
	if summary.Status != "running" {
		t.Errorf("Expected status 'running', got %q", summary.Status)
	}
	if summary.Project != "widget-tools" {
		t.Errorf("Expected project 'widget-tools', got %q", summary.Project)
	}

	stepStartEvent, err := NewStepStarted(taskID, "pull_latest", 1)
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(stepStartEvent)

	summary, _ = projection.GetTask(taskID)
	if summary.CurrentStep != "pull_latest" {
		t.Errorf("Expected current step 'pull_latest', got %q", summary.CurrentStep)
	}

	stepCompleteEvent, err := NewStepCompleted(taskID, "pull_latest", time.Second)
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(stepCompleteEvent)

	summary, _ = projection.GetTask(taskID)
	if summary.StepCount != 1 {
		t.Errorf("Expected step count 1, got %d", summary.StepCount)
	}

	completeEvent, err := NewTaskCompleted(taskID, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(completeEvent)

	summary, _ = projection.GetTask(taskID)
	if summary.Status != "completed" {
		t.Errorf("Expected status 'completed', got %q", summary.Status)
	}
	if summary.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	history := projection.GetHistory()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].TaskID != taskID {
		t.Errorf("Expected task ID %q, got %q", taskID, history[0].TaskID)
	}
}

func TestTaskHistoryProjection_TaskFailed(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewTaskHistoryProjection(store, 10)

	taskID := "task-failed"
	startEvent, _ := NewTaskStarted(taskID, "worker-1")
	projection.Apply(startEvent)

	stepFailEvent, _ := NewStepFailed(taskID, "push_branch", errors.New("git auth failed"), false)
	projection.Apply(stepFailEvent)

	failEvent, _ := NewTaskFailed(taskID, "push_branch", "git auth failed")
	projection.Apply(failEvent)

	summary, exists := projection.GetTask(taskID)
	if !exists {
		t.Fatal("Expected task to exist")
	}
	if summary.Status != "failed" {
		t.Errorf("Expected status 'failed', got %q", summary.Status)
	}
	if summary.ErrorStep != "push_branch" {
		t.Errorf("Expected error step 'push_branch', got %q", summary.ErrorStep)
	}
	if summary.ErrorMessage != "git auth failed" {
		t.Errorf("Expected error message 'git auth failed', got %q", summary.ErrorMessage)
	}
}

func TestTaskHistoryProjection_Rebuild(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	taskID := "task-rebuild-test"
	startEvent, _ := NewTaskStarted(taskID, "worker-2")
	if err := store.Append(ctx, taskID, startEvent.Type(), startEvent.Payload(), nil); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	stepEvent, _ := NewStepCompleted(taskID, "pull_latest", time.Second)
	if err := store.Append(ctx, taskID, stepEvent.Type(), stepEvent.Payload(), nil); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	completeEvent, _ := NewTaskCompleted(taskID, 3*time.Second)
	if err := store.Append(ctx, taskID, completeEvent.Type(), completeEvent.Payload(), nil); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	projection := NewTaskHistoryProjection(store, 10)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("Failed to rebuild: %v", err)
	}

	summary, exists := projection.GetTask(taskID)
	if !exists {
		t.Fatal("Expected task to exist after rebuild")
	}
	if summary.Status != "completed" {
		t.Errorf("Expected status 'completed', got %q", summary.Status)
	}
	if summary.StepCount != 1 {
		t.Errorf("Expected step count 1, got %d", summary.StepCount)
	}

	history := projection.GetHistory()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
}

func TestTaskHistoryProjection_HistoryLimit(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewTaskHistoryProjection(store, 3)

	for i := 0; i < 5; i++ {
		taskID := "task-" + string(rune('a'+i))
		startEvent, _ := NewTaskStarted(taskID, "worker")
		projection.Apply(startEvent)

		completeEvent, _ := NewTaskCompleted(taskID, time.Second)
		projection.Apply(completeEvent)
	}

	history := projection.GetHistory()
	if len(history) != 3 {
		t.Errorf("Expected history length 3, got %d", len(history))
	}
}

func TestTaskHistoryProjection_GetRunningTasks(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewTaskHistoryProjection(store, 10)

	if running := projection.GetRunningTasks(); len(running) != 0 {
		t.Errorf("Expected no running tasks initially, got %d", len(running))
	}

	startEvent, _ := NewTaskStarted("active-task", "worker-1")
	projection.Apply(startEvent)

	running := projection.GetRunningTasks()
	if len(running) != 1 {
		t.Fatalf("Expected 1 running task, got %d", len(running))
	}
	if running[0].TaskID != "active-task" {
		t.Errorf("Expected task ID 'active-task', got %q", running[0].TaskID)
	}

	completeEvent, _ := NewTaskCompleted("active-task", time.Second)
	projection.Apply(completeEvent)

	if running := projection.GetRunningTasks(); len(running) != 0 {
		t.Errorf("Expected no running tasks after completion, got %d", len(running))
	}
}
