// Package scheduler runs tasks against the task engine with a bounded
// worker pool: channel-fed workers, an active-job map guarded by a mutex,
// and per-job cancellation.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/logfields"
	"git.internal.example/releng/pkgrelease/internal/task"
)

// DefaultWorkers is the bounded worker pool size.
const DefaultWorkers = 3

// DefaultQueueSize bounds how many pending submissions may queue; once the
// queue is full, Submit drops further submissions with a warning.
const DefaultQueueSize = 100

// running tracks one admitted, in-flight task.
type running struct {
	taskID string
	cancel context.CancelFunc
}

// Scheduler is the singleton task runner. Its public methods are
// internally synchronized; nothing outside this package touches the
// running map directly.
type Scheduler struct {
	store   task.Store
	engine  *engine.Engine
	workers int

	queue chan string

	mu      sync.Mutex
	running map[string]*running

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Scheduler. Call Start to begin processing.
func New(store task.Store, eng *engine.Engine, workers int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		store:   store,
		engine:  eng,
		workers: workers,
		queue:   make(chan string, DefaultQueueSize),
		running: make(map[string]*running),
		stop:    make(chan struct{}),
	}
}

// Start launches the worker pool and recovers any task left `running` from
// a prior process.
func (s *Scheduler) Start(ctx context.Context) error {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return s.recover(ctx)
}

// Stop signals every in-flight task to cancel and waits for workers to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.mu.Lock()
	for _, r := range s.running {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// recover re-submits every task left in TaskStatusRunning, whose steps
// retain their on-disk status so the engine resumes after the last
// completed step.
func (s *Scheduler) recover(ctx context.Context) error {
	tasks, err := s.store.ListTasks(ctx, task.TaskFilter{Status: task.TaskStatusRunning}, 0)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		slog.Info("scheduler: recovering running task", logfields.JobID(t.ID))
		s.Submit(t.ID)
	}
	return nil
}

// Submit admits taskID for execution. Submitting an already-running task id
// is a no-op with a warning.
func (s *Scheduler) Submit(taskID string) {
	s.mu.Lock()
	if _, ok := s.running[taskID]; ok {
		s.mu.Unlock()
		slog.Warn("scheduler: task already running, ignoring duplicate submission", logfields.JobID(taskID))
		return
	}
	s.mu.Unlock()

	select {
	case s.queue <- taskID:
	default:
		slog.Warn("scheduler: queue full, task will be retried on next submission", logfields.JobID(taskID))
	}
}

// StopTask signals taskID's cancel token. Cancellation is cooperative; an
// in-flight external request may complete before the task notices.
func (s *Scheduler) StopTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.running[taskID]; ok {
		r.cancel()
	}
}

// Running reports whether taskID currently occupies a worker slot.
func (s *Scheduler) Running(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[taskID]
	return ok
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case taskID := <-s.queue:
			s.run(ctx, taskID)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, taskID string) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cancelSignal := make(chan struct{})
	go func() {
		<-taskCtx.Done()
		close(cancelSignal)
	}()

	s.mu.Lock()
	s.running[taskID] = &running{taskID: taskID, cancel: cancel}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, taskID)
		s.mu.Unlock()
	}()

	if err := s.engine.Run(taskCtx, taskID, cancelSignal); err != nil {
		slog.Error("scheduler: task run ended in error", logfields.JobID(taskID), logfields.Error(err))
	}
}
