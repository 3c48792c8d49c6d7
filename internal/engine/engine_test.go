package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"git.internal.example/releng/pkgrelease/internal/metrics"
	"git.internal.example/releng/pkgrelease/internal/task"
)

// memStore is a minimal in-memory task.Store sufficient to exercise the
// engine loop without a real database.
type memStore struct {
	cfg      *task.GlobalConfig
	projects map[string]*task.Project
	tasks    map[string]*task.Task
	steps    map[string][]*task.Step
}

func newMemStore() *memStore {
	return &memStore{
		cfg:      &task.GlobalConfig{ID: 1},
		projects: map[string]*task.Project{},
		tasks:    map[string]*task.Task{},
		steps:    map[string][]*task.Step{},
	}
}

func (m *memStore) GetGlobalConfig(context.Context) (*task.GlobalConfig, error) { return m.cfg, nil }
func (m *memStore) SaveGlobalConfig(_ context.Context, c *task.GlobalConfig) error {
	m.cfg = c
	return nil
}
func (m *memStore) CreateProject(_ context.Context, p *task.Project) error {
	m.projects[p.ID] = p
	return nil
}
func (m *memStore) GetProject(_ context.Context, id string) (*task.Project, error) {
	return m.projects[id], nil
}
func (m *memStore) GetProjectByName(_ context.Context, name string) (*task.Project, error) {
	for _, p := range m.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}
func (m *memStore) ListProjects(context.Context, task.ProjectFilter) ([]*task.Project, error) {
	return nil, nil
}
func (m *memStore) UpdateProject(_ context.Context, p *task.Project) error {
	m.projects[p.ID] = p
	return nil
}
func (m *memStore) DeleteProject(_ context.Context, id string) error {
	delete(m.projects, id)
	return nil
}
func (m *memStore) CreateTask(_ context.Context, t *task.Task) error {
	m.tasks[t.ID] = t
	return nil
}
func (m *memStore) GetTask(_ context.Context, id string) (*task.Task, error) { return m.tasks[id], nil }
func (m *memStore) ListTasks(context.Context, task.TaskFilter, int) ([]*task.Task, error) {
	return nil, nil
}
func (m *memStore) ListSteps(_ context.Context, taskID string) ([]*task.Step, error) {
	return m.steps[taskID], nil
}
func (m *memStore) UpdateTask(_ context.Context, t *task.Task) error {
	m.tasks[t.ID] = t
	return nil
}
func (m *memStore) UpdateStep(_ context.Context, s *task.Step) error {
	for _, existing := range m.steps[s.TaskID] {
		if existing.ID == s.ID {
			*existing = *s
			return nil
		}
	}
	return nil
}
func (m *memStore) Start(context.Context, string) error  { return nil }
func (m *memStore) Pause(context.Context, string) error  { return nil }
func (m *memStore) Resume(context.Context, string) error { return nil }
func (m *memStore) Cancel(context.Context, string) error { return nil }
func (m *memStore) Retry(context.Context, string, int) error {
	return nil
}
func (m *memStore) Delete(context.Context, string) error { return nil }
func (m *memStore) CleanupCompleted(context.Context) (int, error) {
	return 0, nil
}
func (m *memStore) Close() error { return nil }

func seedTask(t *testing.T, store *memStore, mode task.Mode) *task.Task {
	t.Helper()
	project := &task.Project{ID: "p1", Name: "demo"}
	store.projects[project.ID] = project

	tk := &task.Task{ID: "t1", ProjectID: project.ID, Mode: mode, Status: task.TaskStatusPending}
	store.tasks[tk.ID] = tk

	var steps []*task.Step
	for i, name := range task.StepsForMode(mode) {
		steps = append(steps, &task.Step{ID: string(name), TaskID: tk.ID, Order: i, Name: string(name), Status: task.StepStatusPending})
	}
	store.steps[tk.ID] = steps
	return tk
}

func TestEngine_Run_AllStepsSucceed(t *testing.T) {
	store := newMemStore()
	tk := seedTask(t, store, task.ModeChangelogOnly)

	catalog := Catalog{}
	for _, name := range task.StepsForMode(task.ModeChangelogOnly) {
		catalog[name] = func(ctx context.Context, sc *StepContext) Outcome { return Ok() }
	}

	e := New(store, catalog, metrics.NoopRecorder{})
	cancel := make(chan struct{})
	require.NoError(t, e.Run(context.Background(), tk.ID, cancel))

	got := store.tasks[tk.ID]
	require.Equal(t, task.TaskStatusSuccess, got.Status)
	require.NotNil(t, got.CompletedAt)
	for _, s := range store.steps[tk.ID] {
		require.Equal(t, task.StepStatusCompleted, s.Status)
	}
}

func TestEngine_Run_StepFailureAbortsTask(t *testing.T) {
	store := newMemStore()
	tk := seedTask(t, store, task.ModeChangelogOnly)

	calls := 0
	catalog := Catalog{}
	for i, name := range task.StepsForMode(task.ModeChangelogOnly) {
		idx := i
		catalog[name] = func(ctx context.Context, sc *StepContext) Outcome {
			calls++
			if idx == 2 {
				return Fail(assertErr)
			}
			return Ok()
		}
	}

	e := New(store, catalog, metrics.NoopRecorder{})
	err := e.Run(context.Background(), tk.ID, make(chan struct{}))
	require.Error(t, err)

	got := store.tasks[tk.ID]
	require.Equal(t, task.TaskStatusFailed, got.Status)
	steps := store.steps[tk.ID]
	require.Equal(t, task.StepStatusCompleted, steps[0].Status)
	require.Equal(t, task.StepStatusCompleted, steps[1].Status)
	require.Equal(t, task.StepStatusFailed, steps[2].Status)
	require.Equal(t, task.StepStatusPending, steps[3].Status)
	// only the first three handlers ran; the rest were never reached.
	require.Equal(t, 3, calls)
}

func TestEngine_Run_SkipsAlreadyCompletedSteps(t *testing.T) {
	store := newMemStore()
	tk := seedTask(t, store, task.ModeChangelogOnly)
	store.steps[tk.ID][0].Status = task.StepStatusCompleted

	var ran []string
	catalog := Catalog{}
	for _, name := range task.StepsForMode(task.ModeChangelogOnly) {
		n := name
		catalog[name] = func(ctx context.Context, sc *StepContext) Outcome {
			ran = append(ran, string(n))
			return Ok()
		}
	}

	e := New(store, catalog, metrics.NoopRecorder{})
	require.NoError(t, e.Run(context.Background(), tk.ID, make(chan struct{})))
	require.NotContains(t, ran, string(task.StepCheckEnvironment))
}

func TestEngine_Run_CancelDuringStepStopsCleanly(t *testing.T) {
	store := newMemStore()
	tk := seedTask(t, store, task.ModeChangelogOnly)

	cancel := make(chan struct{})
	catalog := Catalog{}
	for i, name := range task.StepsForMode(task.ModeChangelogOnly) {
		idx := i
		catalog[name] = func(ctx context.Context, sc *StepContext) Outcome {
			if idx == 1 {
				close(cancel)
			}
			return Ok()
		}
	}

	e := New(store, catalog, metrics.NoopRecorder{})
	require.NoError(t, e.Run(context.Background(), tk.ID, cancel))

	got := store.tasks[tk.ID]
	require.NotEqual(t, task.TaskStatusFailed, got.Status)
	require.NotEqual(t, task.TaskStatusSuccess, got.Status)
}

var assertErr = &testError{"dispatch failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
