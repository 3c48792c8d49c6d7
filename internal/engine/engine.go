// Package engine drives a Task's steps to completion against the compile-time
// step catalog in internal/task. Handlers return a typed Outcome instead of
// raising, and the engine alone decides what a failure means for the task
// as a whole.
package engine

import (
	"context"
	"log/slog"
	"time"

	"git.internal.example/releng/pkgrelease/internal/foundation"
	"git.internal.example/releng/pkgrelease/internal/logfields"
	"git.internal.example/releng/pkgrelease/internal/metrics"
	"git.internal.example/releng/pkgrelease/internal/task"
)

// Outcome is a step handler's typed result: ok, skipped, or a terminal
// error. Handlers never panic or return a bare Go error through a second
// return value; every outcome is represented in the value itself.
type Outcome struct {
	Err     error
	Skipped bool
}

// Ok is the successful, zero Outcome.
func Ok() Outcome { return Outcome{} }

// Skip marks a step as not applicable to this task: several steps are
// skipped when a prerequisite forge is not configured for the project.
func Skip() Outcome { return Outcome{Skipped: true} }

// Fail wraps err into a failing Outcome.
func Fail(err error) Outcome { return Outcome{Err: err} }

// Failed reports whether the outcome represents a step failure.
func (o Outcome) Failed() bool { return o.Err != nil }

// Handler executes one catalog step against sc. It must be safe to call
// again after a prior failed or cancelled attempt.
type Handler func(ctx context.Context, sc *StepContext) Outcome

// StepContext is everything a handler needs: the task/project/config being
// acted on, the current Step row, and the cancel signal the scheduler holds
// for this task.
type StepContext struct {
	Task    *task.Task
	Project *task.Project
	Config  *task.GlobalConfig
	Step    *task.Step

	Cancel <-chan struct{}
	Log    *slog.Logger
}

// Cancelled reports whether the scheduler has requested this task stop.
func (sc *StepContext) Cancelled() bool {
	select {
	case <-sc.Cancel:
		return true
	default:
		return false
	}
}

// SleepOrCancel sleeps in 1s ticks up to d, returning true early if
// cancelled. Used by polling handlers so cancellation latency stays ≤1s.
func (sc *StepContext) SleepOrCancel(d time.Duration) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-sc.Cancel:
			return true
		case <-ticker.C:
		}
	}
	return false
}

// Catalog maps each step name to its handler, built once at process start:
// a static table that replaces run-time name resolution.
type Catalog map[task.StepName]Handler

// Engine runs tasks against a Store and a Catalog of handlers.
type Engine struct {
	store    task.Store
	catalog  Catalog
	recorder metrics.Recorder
}

// New builds an Engine. recorder may be metrics.NoopRecorder{}.
func New(store task.Store, catalog Catalog, recorder metrics.Recorder) *Engine {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Engine{store: store, catalog: catalog, recorder: recorder}
}

// Run drives the task referenced by taskID to completion or failure, one
// catalog step at a time. cancel is the scheduler's per-task cancel signal.
func (e *Engine) Run(ctx context.Context, taskID string, cancel <-chan struct{}) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	project, err := e.store.GetProject(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	cfg, err := e.store.GetGlobalConfig(ctx)
	if err != nil {
		return err
	}

	log := slog.Default().With(logfields.JobID(t.ID), slog.String("project", project.Name))

	if t.Status != task.TaskStatusRunning {
		t.Status = task.TaskStatusRunning
		if t.StartedAt == nil {
			now := time.Now().UTC()
			t.StartedAt = &now
		}
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}
	}

	steps, err := e.store.ListSteps(ctx, t.ID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		select {
		case <-cancel:
			log.Info("task cancelled between steps", slog.String("at_step", step.Name))
			return nil
		default:
		}

		if step.Status == task.StepStatusCompleted || step.Status == task.StepStatusSkipped {
			continue
		}

		handler, ok := e.catalog[task.StepName(step.Name)]
		if !ok {
			return e.fail(ctx, t, step, foundation.NewError(foundation.ErrorCodeInternal, "no handler registered for step").
				WithComponent("engine").WithField("step", step.Name).Build())
		}

		now := time.Now().UTC()
		step.Status = task.StepStatusRunning
		step.StartedAt = &now
		if err := e.store.UpdateStep(ctx, step); err != nil {
			return err
		}

		sc := &StepContext{Task: t, Project: project, Config: cfg, Step: step, Cancel: cancel, Log: log}
		start := time.Now()
		outcome := handler(ctx, sc)
		e.recorder.ObserveStageDuration(step.Name, time.Since(start))

		if sc.Cancelled() {
			log.Info("task cancelled during step", slog.String("at_step", step.Name))
			return nil
		}

		completedAt := time.Now().UTC()
		if outcome.Failed() {
			step.Status = task.StepStatusFailed
			step.Error = outcome.Err.Error()
			step.CompletedAt = &completedAt
			e.recorder.IncStageResult(step.Name, metrics.ResultFatal)
			if err := e.store.UpdateStep(ctx, step); err != nil {
				return err
			}
			return e.fail(ctx, t, step, outcome.Err)
		}

		if outcome.Skipped {
			step.Status = task.StepStatusSkipped
		} else {
			step.Status = task.StepStatusCompleted
		}
		step.CompletedAt = &completedAt
		e.recorder.IncStageResult(step.Name, metrics.ResultSuccess)
		if err := e.store.UpdateStep(ctx, step); err != nil {
			return err
		}
		// Flush whatever fields the handler set on the task (review_url,
		// mirror_head, build_id, ...) so they are visible before the task
		// as a whole completes, not just at its terminal transition.
		t.CurrentStepIndex = step.Order
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}
	}

	t.Status = task.TaskStatusSuccess
	completedAt := time.Now().UTC()
	t.CompletedAt = &completedAt
	e.recorder.IncBuildOutcome(metrics.BuildOutcomeSuccess)
	return e.store.UpdateTask(ctx, t)
}

func (e *Engine) fail(ctx context.Context, t *task.Task, step *task.Step, cause error) error {
	t.Status = task.TaskStatusFailed
	t.Error = cause.Error()
	completedAt := time.Now().UTC()
	t.CompletedAt = &completedAt
	e.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	_ = step
	return cause
}
