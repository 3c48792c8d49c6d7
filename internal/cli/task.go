package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"git.internal.example/releng/pkgrelease/internal/foundation/normalization"
	"git.internal.example/releng/pkgrelease/internal/task"
	"git.internal.example/releng/pkgrelease/internal/util/sets"
)

// modeNormalizer validates the free-form --mode flag against the catalog's
// known modes instead of casting the raw string straight to task.Mode.
var modeNormalizer = normalization.NewEnumNormalizer("mode", map[string]task.Mode{
	"normal":         task.ModeNormal,
	"changelog_only": task.ModeChangelogOnly,
	"crp_only":       task.ModeCRPOnly,
}, task.ModeNormal)

// TaskCmd groups task management subcommands.
type TaskCmd struct {
	Create  TaskCreateCmd  `cmd:"" help:"Create a task for a project"`
	Start   TaskStartCmd   `cmd:"" help:"Queue a pending or paused task for execution"`
	Pause   TaskPauseCmd   `cmd:"" help:"Pause a running task"`
	Resume  TaskResumeCmd  `cmd:"" help:"Resume a paused task"`
	Cancel  TaskCancelCmd  `cmd:"" help:"Cancel a task"`
	Retry   TaskRetryCmd   `cmd:"" help:"Retry a failed task from a given step"`
	Delete  TaskDeleteCmd  `cmd:"" help:"Delete a task"`
	List    TaskListCmd    `cmd:"" help:"List tasks"`
	Show    TaskShowCmd    `cmd:"" help:"Show a task and its steps"`
}

// TaskCreateCmd implements `task create`.
type TaskCreateCmd struct {
	Project string   `arg:"" help:"Project name"`
	Version string   `arg:"" help:"Target version string"`
	Mode    string   `name:"mode" help:"normal|changelog_only|crp_only" default:"normal"`
	TopicID string   `name:"topic-id" help:"package-service topic id"`
	Arches  []string `name:"arches" help:"Override architectures for this task"`
}

func (c *TaskCreateCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	mode, err := modeNormalizer.NormalizeWithValidation(c.Mode)
	if err != nil {
		return err
	}

	ctx := context.Background()
	p, err := store.GetProjectByName(ctx, c.Project)
	if err != nil {
		return fmt.Errorf("find project: %w", err)
	}

	t := &task.Task{
		ProjectID:     p.ID,
		ProjectName:   p.Name,
		Mode:          mode,
		Version:       c.Version,
		Architectures: dedupeArches(c.Arches),
		TopicID:       c.TopicID,
	}
	if err := store.CreateTask(ctx, t); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	fmt.Printf("task %s created for %s @ %s (mode=%s)\n", t.ID, p.Name, c.Version, t.Mode)
	return nil
}

// dedupeArches drops repeated --arches values a careless invocation might
// supply (e.g. a shell glob expanding twice) and returns them sorted.
func dedupeArches(arches []string) []string {
	if len(arches) == 0 {
		return arches
	}
	seen := sets.New(arches...)
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// TaskStartCmd implements `task start`.
type TaskStartCmd struct {
	ID string `arg:"" help:"Task id"`
}

func (c *TaskStartCmd) Run(_ *Global, root *CLI) error {
	return withStore(root, func(store task.Store) error { return store.Start(context.Background(), c.ID) }, c.ID, "started")
}

// TaskPauseCmd implements `task pause`.
type TaskPauseCmd struct {
	ID string `arg:"" help:"Task id"`
}

func (c *TaskPauseCmd) Run(_ *Global, root *CLI) error {
	return withStore(root, func(store task.Store) error { return store.Pause(context.Background(), c.ID) }, c.ID, "paused")
}

// TaskResumeCmd implements `task resume`.
type TaskResumeCmd struct {
	ID string `arg:"" help:"Task id"`
}

func (c *TaskResumeCmd) Run(_ *Global, root *CLI) error {
	return withStore(root, func(store task.Store) error { return store.Resume(context.Background(), c.ID) }, c.ID, "resumed")
}

// TaskCancelCmd implements `task cancel`.
type TaskCancelCmd struct {
	ID string `arg:"" help:"Task id"`
}

func (c *TaskCancelCmd) Run(_ *Global, root *CLI) error {
	return withStore(root, func(store task.Store) error { return store.Cancel(context.Background(), c.ID) }, c.ID, "cancelled")
}

// TaskDeleteCmd implements `task delete`.
type TaskDeleteCmd struct {
	ID string `arg:"" help:"Task id"`
}

func (c *TaskDeleteCmd) Run(_ *Global, root *CLI) error {
	return withStore(root, func(store task.Store) error { return store.Delete(context.Background(), c.ID) }, c.ID, "deleted")
}

// withStore opens the store, runs fn, and prints a uniform confirmation
// line for the simple one-verb task transitions.
func withStore(root *CLI, fn func(task.Store) error, id, verb string) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := fn(store); err != nil {
		return fmt.Errorf("task %s: %w", verb, err)
	}
	fmt.Printf("task %s %s\n", id, verb)
	return nil
}

// TaskRetryCmd implements `task retry`.
type TaskRetryCmd struct {
	ID        string `arg:"" help:"Task id"`
	FromStep  int    `name:"from-step" help:"0-based step index to retry from (0 means every step)" default:"0"`
}

func (c *TaskRetryCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Retry(context.Background(), c.ID, c.FromStep); err != nil {
		return fmt.Errorf("task retry: %w", err)
	}
	fmt.Printf("task %s queued to retry from step %d\n", c.ID, c.FromStep)
	return nil
}

// TaskListCmd implements `task list`.
type TaskListCmd struct {
	Status string `name:"status" help:"Filter by status"`
	Limit  int    `name:"limit" help:"Maximum rows" default:"50"`
}

func (c *TaskListCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.ListTasks(context.Background(), task.TaskFilter{Status: task.TaskStatus(c.Status)}, c.Limit)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	for _, t := range tasks {
		fmt.Printf("%-8s %-20s %-10s %-8s step=%d version=%s\n", t.ID, t.ProjectName, t.Mode, t.Status, t.CurrentStepIndex, t.Version)
	}
	return nil
}

// TaskShowCmd implements `task show`.
type TaskShowCmd struct {
	ID string `arg:"" help:"Task id"`
}

func (c *TaskShowCmd) Run(_ *Global, root *CLI) error {
	_, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	t, err := store.GetTask(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	steps, err := store.ListSteps(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}

	fmt.Printf("task:    %s\n", t.ID)
	fmt.Printf("project: %s\n", t.ProjectName)
	fmt.Printf("mode:    %s\n", t.Mode)
	fmt.Printf("version: %s\n", t.Version)
	fmt.Printf("status:  %s\n", t.Status)
	if t.Error != "" {
		fmt.Printf("error:   %s\n", t.Error)
	}
	fmt.Println(strings.Repeat("-", 60))
	for _, s := range steps {
		fmt.Printf("%2d  %-22s %-10s %s\n", s.Order, s.Name, s.Status, s.Error)
	}
	return nil
}
