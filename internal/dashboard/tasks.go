package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/meter"
	"github.com/jgoulah/meterwatch/internal/metrics"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// Task is a unit of periodic work
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler runs tasks on independent tickers
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// NewScheduler creates a scheduler for tasks
func NewScheduler(logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, logger: logger}
}

// Run starts every task, running each once immediately and then on its own
// ticker, until ctx is cancelled. A failing run is logged and the task keeps
// its schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() error {
			return s.loop(ctx, t)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, t Task) error {
	if t.Every <= 0 {
		s.logger.Warn("task_disabled", "task", t.Name)
		return nil
	}

	s.runOnce(ctx, t)

	ticker := time.NewTicker(t.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	if err := t.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("task_failed", "task", t.Name, "error", err)
	}
}

// MeterSource returns the latest meter document from the backend
type MeterSource interface {
	Meter(ctx context.Context) (models.MeterFile, error)
}

// SnapshotSink receives the meter state after every simulator tick
type SnapshotSink interface {
	PublishSnapshot(snap models.MeterSnapshot) error
}

// Intervals are the task periods
type Intervals struct {
	Tick         time.Duration
	Clock        time.Duration
	Stats        time.Duration
	ChartRefresh time.Duration
	FlapCheck    time.Duration
	Sync         time.Duration
}

// Deps wires the tasks to their collaborators. Source, Sink and Metrics are
// optional.
type Deps struct {
	Board     *Board
	Simulator *meter.Simulator
	Flapper   *meter.Flapper
	Evaluator *alert.Evaluator
	Notifier  *alert.Notifier
	Source    MeterSource
	Sink      SnapshotSink
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Tasks builds the dashboard's periodic tasks
func Tasks(d Deps, iv Intervals) []Task {
	tasks := []Task{
		{Name: "realtime", Every: iv.Tick, Run: d.Realtime},
		{Name: "clock", Every: iv.Clock, Run: d.Clock},
		{Name: "daily-stats", Every: iv.Stats, Run: d.DailyStats},
		{Name: "chart-refresh", Every: iv.ChartRefresh, Run: d.ChartRefresh},
		{Name: "connectivity", Every: iv.FlapCheck, Run: d.Connectivity},
	}
	if d.Source != nil {
		tasks = append(tasks, Task{Name: "sync", Every: iv.Sync, Run: d.Sync})
	}
	return tasks
}

// Realtime advances the simulated meter and raises any alert
func (d Deps) Realtime(ctx context.Context) error {
	now := d.now()
	remote := d.Board.RemoteOnline()
	snap := d.Board.UpdateSnapshot(func(s *models.MeterSnapshot) {
		d.Simulator.Tick(s)
		s.IsOnline = remote && d.Flapper.Online(now)
	})
	d.Metrics.ObserveSnapshot(snap)

	if n, ok := d.Evaluator.Check(snap, now); ok {
		d.Metrics.Alert(string(n.Kind))
		d.Notifier.Raise(n)
	}

	if d.Sink != nil {
		return d.Sink.PublishSnapshot(snap)
	}
	return nil
}

// Clock refreshes the clock text
func (d Deps) Clock(ctx context.Context) error {
	d.Board.SetClock(d.now())
	return nil
}

// DailyStats recomputes today's stats and the history table
func (d Deps) DailyStats(ctx context.Context) error {
	stats := d.Board.RefreshStats(ctx)
	d.Board.RefreshHistory(ctx)
	d.Logger.Debug("daily_stats_refreshed", "usage", stats.Usage, "peak", stats.PeakPower)
	return nil
}

// ChartRefresh re-resolves the chart when the hourly view is active
func (d Deps) ChartRefresh(ctx context.Context) error {
	if d.Board.Active() != models.Hourly {
		return nil
	}
	res := d.Board.Select(ctx, models.Hourly)
	d.Logger.Debug("chart_refreshed", "tier", string(res.Tier), "points", res.Series.Len())
	return nil
}

// Connectivity rolls for a simulated outage
func (d Deps) Connectivity(ctx context.Context) error {
	now := d.now()
	if d.Flapper.Check(now) {
		d.Board.UpdateSnapshot(func(s *models.MeterSnapshot) { s.IsOnline = false })
		d.Logger.Info("meter_offline", "until", d.Flapper.OfflineUntil())
	}
	return nil
}

// Sync pulls the real meter state from the backend. On failure the current
// snapshot is kept.
func (d Deps) Sync(ctx context.Context) error {
	file, err := d.Source.Meter(ctx)
	if err != nil {
		return err
	}
	snap := d.Board.UpdateSnapshot(func(s *models.MeterSnapshot) { Merge(s, file) })
	if online, ok := file.Online(); ok {
		d.Board.SetRemoteOnline(online)
	}
	d.Logger.Info("meter_synced", "name", snap.Name, "remaining", snap.RemainingPower)
	return nil
}

// Merge copies the non-empty fields of file into snap. A reported status
// sets the online flag.
func Merge(snap *models.MeterSnapshot, file models.MeterFile) {
	if online, ok := file.Online(); ok {
		snap.IsOnline = online
	}
	if name := file.DisplayName(); name != "" {
		snap.Name = name
	}
	if id := file.DisplayID(); id != "" {
		snap.Number = id
	}
	if file.RemainingPower != 0 {
		snap.RemainingPower = file.RemainingPower
	}
	if file.RemainingAmount != 0 {
		snap.RemainingAmount = file.RemainingAmount
	}
	if file.UnitPrice != 0 {
		snap.UnitPrice = file.UnitPrice
	}
	if file.CurrentPower != 0 {
		snap.CurrentPower = file.CurrentPower
	}
}
