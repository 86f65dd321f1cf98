package dashboard

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/logging"
	"github.com/jgoulah/meterwatch/internal/meter"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var fixedNow = time.Date(2025, 9, 17, 14, 0, 0, 0, time.UTC)

type fakeResolver struct {
	mu    sync.Mutex
	calls map[models.Granularity]int
	data  map[models.Granularity]models.Series
}

func newFakeResolver() *fakeResolver {
	hourly := models.NewSeries(24)
	for i := 0; i < 24; i++ {
		hourly.Append("h", 1)
	}
	hourly.Data[5] = 2.5
	return &fakeResolver{
		calls: map[models.Granularity]int{},
		data: map[models.Granularity]models.Series{
			models.Hourly: hourly,
			models.Daily:  {Labels: []string{"a", "b", "c"}, Data: []float64{10, 12, 24}},
		},
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, g models.Granularity) resolver.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[g]++
	return resolver.Resolution{Series: f.data[g], Tier: resolver.TierSynthetic}
}

func (f *fakeResolver) count(g models.Granularity) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[g]
}

type staticThresholds models.AlertThresholds

func (s staticThresholds) Thresholds() models.AlertThresholds { return models.AlertThresholds(s) }

func newDeps(res SeriesResolver) Deps {
	notifier := alert.NewNotifier(logging.Discard())
	board := NewBoard(res, notifier)
	board.now = func() time.Time { return fixedNow }

	sim := meter.NewSimulator(2 * time.Second)
	sim.Rand = rand.New(rand.NewSource(1))
	sim.Now = func() time.Time { return fixedNow }

	flapper := meter.NewFlapper(rand.New(rand.NewSource(1)))

	return Deps{
		Board:     board,
		Simulator: sim,
		Flapper:   flapper,
		Evaluator: alert.NewEvaluator(staticThresholds(models.DefaultThresholds())),
		Notifier:  notifier,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return fixedNow },
	}
}

func TestDailyStatsFrom(t *testing.T) {
	s := models.Series{Data: []float64{1, 2, 3}}
	stats := DailyStatsFrom(s, 0.5)

	assert.Equal(t, 6.0, stats.Usage)
	assert.Equal(t, 3.0, stats.Cost)
	assert.Equal(t, 0.25, stats.AvgPower)
	assert.InDelta(t, 3.6, stats.PeakPower, 1e-9)
}

func TestHistoryFrom(t *testing.T) {
	daily := models.Series{Labels: []string{"x", "y"}, Data: []float64{12, 24}}
	rows := HistoryFrom(daily, 2, fixedNow)

	require.Len(t, rows, 2)
	assert.Equal(t, "2025/09/16", rows[0].Date)
	assert.Equal(t, "2025/09/17", rows[1].Date)
	assert.Equal(t, 24.0, rows[0].Cost)
	assert.Equal(t, 1.0, rows[1].AvgPower)
}

func TestSelectStoresChart(t *testing.T) {
	d := newDeps(newFakeResolver())

	res := d.Board.Select(context.Background(), models.Daily)
	assert.Equal(t, resolver.TierSynthetic, res.Tier)

	v := d.Board.View()
	assert.Equal(t, models.Daily, v.Granularity)
	assert.Equal(t, []float64{10, 12, 24}, v.Chart.Data)
	assert.Equal(t, len(v.Chart.Labels), len(v.Chart.Data))
}

type switchingResolver struct {
	board *Board
}

func (s *switchingResolver) Resolve(ctx context.Context, g models.Granularity) resolver.Resolution {
	if g == models.Hourly {
		// the user picks another granularity while hourly is in flight
		s.board.mu.Lock()
		s.board.gran = models.Weekly
		s.board.mu.Unlock()
	}
	return resolver.Resolution{Series: models.Series{Labels: []string{string(g)}, Data: []float64{1}}, Tier: resolver.TierRemote}
}

func TestSelectDiscardsStaleResult(t *testing.T) {
	sr := &switchingResolver{}
	board := NewBoard(sr, nil)
	sr.board = board

	board.Select(context.Background(), models.Hourly)

	v := board.View()
	assert.Equal(t, models.Weekly, v.Granularity)
	assert.Empty(t, v.Chart.Labels)
}

func TestViewIsACopy(t *testing.T) {
	d := newDeps(newFakeResolver())
	d.Board.Select(context.Background(), models.Hourly)

	v := d.Board.View()
	v.Chart.Data[0] = 99

	assert.Equal(t, 1.0, d.Board.View().Chart.Data[0])
}

func TestRealtimeRaisesLowBalance(t *testing.T) {
	d := newDeps(newFakeResolver())
	d.Board.UpdateSnapshot(func(s *models.MeterSnapshot) {
		s.RemainingPower = 5
		s.RemainingAmount = 5
		s.UnitPrice = 1
	})

	require.NoError(t, d.Realtime(context.Background()))

	v := d.Board.View()
	require.NotNil(t, v.Notice)
	assert.Equal(t, alert.LowBalance, v.Notice.Kind)
	assert.Less(t, v.Meter.RemainingPower, 5.0)
	assert.True(t, v.Meter.IsOnline)
}

type recordingSink struct {
	got []models.MeterSnapshot
}

func (r *recordingSink) PublishSnapshot(s models.MeterSnapshot) error {
	r.got = append(r.got, s)
	return nil
}

func TestRealtimePublishesSnapshot(t *testing.T) {
	d := newDeps(newFakeResolver())
	sink := &recordingSink{}
	d.Sink = sink

	require.NoError(t, d.Realtime(context.Background()))
	require.Len(t, sink.got, 1)
	assert.Equal(t, fixedNow, sink.got[0].LastUpdate)
}

func TestDailyStatsTask(t *testing.T) {
	d := newDeps(newFakeResolver())
	d.Board.UpdateSnapshot(func(s *models.MeterSnapshot) { s.UnitPrice = 1 })

	require.NoError(t, d.DailyStats(context.Background()))

	v := d.Board.View()
	assert.InDelta(t, 25.5, v.Stats.Usage, 1e-9)
	assert.InDelta(t, 3.0, v.Stats.PeakPower, 1e-9)
	require.Len(t, v.History, 3)
	assert.Equal(t, "2025/09/17", v.History[2].Date)
}

func TestChartRefreshOnlyWhenHourly(t *testing.T) {
	res := newFakeResolver()
	d := newDeps(res)

	require.NoError(t, d.ChartRefresh(context.Background()))
	assert.Equal(t, 1, res.count(models.Hourly))

	d.Board.Select(context.Background(), models.Weekly)
	require.NoError(t, d.ChartRefresh(context.Background()))
	assert.Equal(t, 1, res.count(models.Hourly))
}

func TestClockTask(t *testing.T) {
	d := newDeps(newFakeResolver())
	require.NoError(t, d.Clock(context.Background()))
	assert.Equal(t, "2025/09/17 14:00:00", d.Board.View().Clock)
}

func TestConnectivityTakesMeterOffline(t *testing.T) {
	d := newDeps(newFakeResolver())
	d.Flapper.Probability = 1

	require.NoError(t, d.Connectivity(context.Background()))
	assert.False(t, d.Board.Snapshot().IsOnline)

	// realtime keeps it offline until recovery
	require.NoError(t, d.Realtime(context.Background()))
	assert.False(t, d.Board.Snapshot().IsOnline)

	d.Now = func() time.Time { return fixedNow.Add(16 * time.Second) }
	require.NoError(t, d.Realtime(context.Background()))
	assert.True(t, d.Board.Snapshot().IsOnline)
}

type fakeSource struct {
	file models.MeterFile
	err  error
}

func (f fakeSource) Meter(ctx context.Context) (models.MeterFile, error) { return f.file, f.err }

func TestSyncMergesNonZeroFields(t *testing.T) {
	d := newDeps(newFakeResolver())
	d.Source = fakeSource{file: models.MeterFile{MeterName: "real", RemainingPower: 42, UnitPrice: 0.6}}

	require.NoError(t, d.Sync(context.Background()))

	snap := d.Board.Snapshot()
	assert.Equal(t, "real", snap.Name)
	assert.Equal(t, "18100071580", snap.Number)
	assert.Equal(t, 42.0, snap.RemainingPower)
	assert.Equal(t, 0.6, snap.UnitPrice)
	assert.Equal(t, 14.84, snap.RemainingAmount)
}

func TestSyncReflectsReportedStatus(t *testing.T) {
	d := newDeps(newFakeResolver())
	ctx := context.Background()

	d.Source = fakeSource{file: models.MeterFile{RemainingPower: 42, Status: "offline"}}
	require.NoError(t, d.Sync(ctx))
	assert.False(t, d.Board.Snapshot().IsOnline)

	// the next tick must not bring it back online
	require.NoError(t, d.Realtime(ctx))
	assert.False(t, d.Board.Snapshot().IsOnline)

	d.Source = fakeSource{file: models.MeterFile{RemainingPower: 41, Status: "success"}}
	require.NoError(t, d.Sync(ctx))
	require.NoError(t, d.Realtime(ctx))
	assert.True(t, d.Board.Snapshot().IsOnline)

	// no status leaves the flag alone
	d.Source = fakeSource{file: models.MeterFile{RemainingPower: 40}}
	require.NoError(t, d.Sync(ctx))
	assert.True(t, d.Board.RemoteOnline())
}

func TestMergeStatus(t *testing.T) {
	snap := models.DefaultSnapshot()
	Merge(&snap, models.MeterFile{Status: "error"})
	assert.False(t, snap.IsOnline)

	Merge(&snap, models.MeterFile{Status: "online"})
	assert.True(t, snap.IsOnline)

	Merge(&snap, models.MeterFile{})
	assert.True(t, snap.IsOnline)
}

func TestSyncFailureKeepsSnapshot(t *testing.T) {
	d := newDeps(newFakeResolver())
	d.Source = fakeSource{err: errors.New("connection refused")}
	before := d.Board.Snapshot()

	assert.Error(t, d.Sync(context.Background()))
	assert.Equal(t, before, d.Board.Snapshot())
}

func TestTasksIncludeSyncOnlyWithSource(t *testing.T) {
	d := newDeps(newFakeResolver())
	assert.Len(t, Tasks(d, Intervals{}), 5)

	d.Source = fakeSource{}
	tasks := Tasks(d, Intervals{})
	assert.Len(t, tasks, 6)
	assert.Equal(t, "sync", tasks[5].Name)
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	var fast, failing atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler(logging.Discard(),
		Task{Name: "fast", Every: 5 * time.Millisecond, Run: func(context.Context) error {
			if fast.Add(1) >= 3 {
				cancel()
			}
			return nil
		}},
		Task{Name: "failing", Every: time.Hour, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("boom")
		}},
		Task{Name: "disabled", Every: 0, Run: func(context.Context) error {
			t.Error("disabled task ran")
			return nil
		}},
	)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, fast.Load(), int32(3))
	assert.Equal(t, int32(1), failing.Load())
}
