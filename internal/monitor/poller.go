package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.internal.example/releng/pkgrelease/internal/task"
)

// ScanFunc supplies the current set of ready projects to scan.
type ScanFunc func(ctx context.Context) ([]*task.Project, error)

// CompletionFunc is invoked after each sweep with the aggregate result.
type CompletionFunc func(results []ProjectStatus)

// Poller drives periodic monitor sweeps on a gocron schedule.
type Poller struct {
	monitor    *Monitor
	scheduler  gocron.Scheduler
	listProjects ScanFunc
	onComplete   CompletionFunc
}

// NewPoller builds a Poller. Call Start to begin the periodic scan.
func NewPoller(m *Monitor, listProjects ScanFunc, onComplete CompletionFunc) (*Poller, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Poller{monitor: m, scheduler: sched, listProjects: listProjects, onComplete: onComplete}, nil
}

// Start schedules the recurring sweep at the given interval and starts the scheduler.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			projects, err := p.listProjects(ctx)
			if err != nil {
				slog.Warn("monitor poll: failed to list projects", slog.String("error", err.Error()))
				return
			}
			results := p.monitor.Scan(projects)
			if p.onComplete != nil {
				p.onComplete(results)
			}
		}),
	)
	if err != nil {
		return err
	}
	p.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down.
func (p *Poller) Stop() error {
	return p.scheduler.Shutdown()
}
