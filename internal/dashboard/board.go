// Package dashboard holds the live meter view and the periodic tasks that
// keep it current. All state lives on a Board guarded by one mutex; tasks
// run independently and readers always get a copy.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// ClockLayout is the format of the dashboard clock
const ClockLayout = "2006/01/02 15:04:05"

// SeriesResolver resolves a usage series for a granularity
type SeriesResolver interface {
	Resolve(ctx context.Context, g models.Granularity) resolver.Resolution
}

// View is a point-in-time copy of the dashboard
type View struct {
	Meter       models.MeterSnapshot `json:"meter"`
	Granularity models.Granularity   `json:"granularity"`
	Chart       models.Series        `json:"chart"`
	Tier        resolver.Tier        `json:"tier"`
	Stats       models.DailyStats    `json:"dailyStats"`
	History     []models.HistoryRow  `json:"history"`
	Clock       string               `json:"clock"`
	Notice      *alert.Notice        `json:"notice,omitempty"`
}

// Board is the shared dashboard state
type Board struct {
	resolver SeriesResolver
	notifier *alert.Notifier
	now      func() time.Time

	mu      sync.RWMutex
	snap    models.MeterSnapshot
	gran    models.Granularity
	chart   models.Series
	tier    resolver.Tier
	stats   models.DailyStats
	history []models.HistoryRow
	clock   string
	remote  bool // last connectivity reported by the backend
}

// NewBoard creates a board showing the default meter and the hourly chart
func NewBoard(res SeriesResolver, notifier *alert.Notifier) *Board {
	return &Board{
		resolver: res,
		notifier: notifier,
		now:      time.Now,
		snap:     models.DefaultSnapshot(),
		gran:     models.Hourly,
		remote:   true,
	}
}

// Snapshot returns a copy of the current meter state
func (b *Board) Snapshot() models.MeterSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// UpdateSnapshot applies fn to the meter state under the lock and returns the result
func (b *Board) UpdateSnapshot(fn func(*models.MeterSnapshot)) models.MeterSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.snap)
	return b.snap
}

// RemoteOnline reports whether the backend last said the meter was online
func (b *Board) RemoteOnline() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.remote
}

// SetRemoteOnline records the connectivity reported by the backend
func (b *Board) SetRemoteOnline(online bool) {
	b.mu.Lock()
	b.remote = online
	b.mu.Unlock()
}

// Active returns the selected granularity
func (b *Board) Active() models.Granularity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gran
}

// Select switches the chart to g and resolves its series. If another
// selection happens while resolving, the older result is discarded.
func (b *Board) Select(ctx context.Context, g models.Granularity) resolver.Resolution {
	b.mu.Lock()
	b.gran = g
	b.mu.Unlock()

	res := b.resolver.Resolve(ctx, g)

	b.mu.Lock()
	if b.gran == g {
		b.chart = res.Series
		b.tier = res.Tier
	}
	b.mu.Unlock()
	return res
}

// RefreshStats recomputes today's stats from the hourly series
func (b *Board) RefreshStats(ctx context.Context) models.DailyStats {
	res := b.resolver.Resolve(ctx, models.Hourly)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = DailyStatsFrom(res.Series, b.snap.UnitPrice)
	return b.stats
}

// RefreshHistory rebuilds the seven-day history table from the daily series
func (b *Board) RefreshHistory(ctx context.Context) []models.HistoryRow {
	res := b.resolver.Resolve(ctx, models.Daily)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = HistoryFrom(res.Series, b.snap.UnitPrice, b.now())
	return append([]models.HistoryRow(nil), b.history...)
}

// SetClock updates the clock text
func (b *Board) SetClock(t time.Time) {
	b.mu.Lock()
	b.clock = t.Format(ClockLayout)
	b.mu.Unlock()
}

// View returns a copy of everything the dashboard shows
func (b *Board) View() View {
	b.mu.RLock()
	v := View{
		Meter:       b.snap,
		Granularity: b.gran,
		Chart: models.Series{
			Labels: append([]string(nil), b.chart.Labels...),
			Data:   append([]float64(nil), b.chart.Data...),
		},
		Tier:    b.tier,
		Stats:   b.stats,
		History: append([]models.HistoryRow(nil), b.history...),
		Clock:   b.clock,
	}
	b.mu.RUnlock()

	if b.notifier != nil {
		if n, ok := b.notifier.Active(b.now()); ok {
			v.Notice = &n
		}
	}
	return v
}

// DailyStatsFrom derives today's stats from an hourly series
func DailyStatsFrom(hourly models.Series, unitPrice float64) models.DailyStats {
	usage := hourly.Sum()
	return models.DailyStats{
		Usage:     usage,
		Cost:      usage * unitPrice,
		AvgPower:  usage / 24,
		PeakPower: hourly.Max() * 1.2,
	}
}

// HistoryFrom turns a daily series into history rows dated back from now,
// oldest first
func HistoryFrom(daily models.Series, unitPrice float64, now time.Time) []models.HistoryRow {
	n := daily.Len()
	rows := make([]models.HistoryRow, 0, n)
	for i, usage := range daily.Data {
		rows = append(rows, models.HistoryRow{
			Date:     now.AddDate(0, 0, i-(n-1)).Format("2006/01/02"),
			Usage:    usage,
			Cost:     usage * unitPrice,
			AvgPower: usage / 24,
		})
	}
	return rows
}
