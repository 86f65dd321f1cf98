package usage

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jgoulah/meterwatch/internal/database"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// MaxHistory is the number of readings kept in the history table
const MaxHistory = 1000

// retention is how long each granularity's buckets are kept
var retention = map[models.Granularity]time.Duration{
	models.TenMinute: 24 * time.Hour,
	models.Hourly:    30 * 24 * time.Hour,
	models.Daily:     365 * 24 * time.Hour,
	models.Weekly:    52 * 7 * 24 * time.Hour,
	models.Monthly:   730 * 24 * time.Hour,
}

// Key returns the bucket key for t at granularity g
func Key(g models.Granularity, t time.Time) string {
	switch g {
	case models.TenMinute:
		return t.Truncate(time.Minute).Add(-time.Duration(t.Minute()%10) * time.Minute).Format("2006-01-02 15:04")
	case models.Hourly:
		return t.Format("2006-01-02-15")
	case models.Daily:
		return t.Format("2006-01-02")
	case models.Weekly:
		return WeekKey(t)
	case models.Monthly:
		return t.Format("2006-01")
	}
	return t.Format(time.RFC3339)
}

// WeekKey returns YYYY-Wnn for the week containing t. Weeks start on Monday
// and nn is the Sunday-based week of the year of that Monday, so the first
// days of January before any Sunday fall in week 00.
func WeekKey(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)
	week := (monday.YearDay() - 1 + 7 - int(monday.Weekday())) / 7
	return fmt.Sprintf("%d-W%02d", monday.Year(), week)
}

// Aggregator turns successive readings into usage buckets
type Aggregator struct {
	db     *database.DB
	logger *slog.Logger
}

// NewAggregator creates an aggregator backed by db
func NewAggregator(db *database.DB, logger *slog.Logger) *Aggregator {
	return &Aggregator{db: db, logger: logger}
}

// Record stores r in the history and adds its consumption to every bucket
// containing now. It returns the usage attributed to this reading.
func (a *Aggregator) Record(r *models.Reading, now time.Time) (float64, error) {
	prev, err := a.db.LatestReading()
	if err != nil {
		return 0, err
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if _, err := a.db.InsertReading(r); err != nil {
		return 0, err
	}
	if err := a.db.TrimReadings(MaxHistory); err != nil {
		return 0, err
	}

	var used float64
	if prev != nil {
		used = math.Max(0, prev.RemainingPower-r.RemainingPower)
	}

	for _, g := range models.StoredGranularities {
		if err := a.db.UpsertBucket(g, Key(g, now), used, r.RemainingPower, g == models.Daily); err != nil {
			return 0, err
		}
	}

	if err := a.prune(now); err != nil {
		return 0, err
	}

	a.logger.Debug("reading_recorded", "usage", used, "remaining", r.RemainingPower)
	return used, nil
}

func (a *Aggregator) prune(now time.Time) error {
	for _, g := range models.StoredGranularities {
		cutoff := Key(g, now.Add(-retention[g]))
		n, err := a.db.PruneBuckets(g, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			a.logger.Debug("buckets_pruned", "granularity", g.String(), "count", n, "cutoff", cutoff)
		}
	}
	return nil
}

// Buckets returns the stored buckets for g keyed by bucket key
func (a *Aggregator) Buckets(g models.Granularity) (map[string]models.UsageBucket, error) {
	list, err := a.db.ListBuckets(g)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.UsageBucket, len(list))
	for _, b := range list {
		out[b.Key] = b
	}
	return out, nil
}

// Summary returns the consumption for today, this week, this month and the
// last 24 hours as of now
func (a *Aggregator) Summary(now time.Time) (models.UsageSummary, error) {
	var s models.UsageSummary

	for _, p := range []struct {
		g   models.Granularity
		dst *models.UsageBucket
	}{
		{models.Daily, &s.Today},
		{models.Weekly, &s.ThisWeek},
		{models.Monthly, &s.ThisMonth},
	} {
		b, err := a.db.GetBucket(p.g, Key(p.g, now))
		if err != nil {
			return s, err
		}
		if b != nil {
			*p.dst = *b
		}
	}

	tenMin, err := a.db.ListBuckets(models.TenMinute)
	if err != nil {
		return s, err
	}
	for _, b := range tenMin {
		s.Recent24h += b.Usage
	}

	latest, err := a.db.LatestReading()
	if err != nil {
		return s, err
	}
	if latest != nil {
		s.CurrentPower = latest.RemainingPower
	}

	return s, nil
}

// Recent returns the usage embedded in the snapshot document: the newest 24
// hourly buckets and the newest 7 daily buckets, oldest first
func (a *Aggregator) Recent() ([]models.HourlyUsage, []models.DailyUsage, error) {
	hourly, err := a.db.ListBuckets(models.Hourly)
	if err != nil {
		return nil, nil, err
	}
	daily, err := a.db.ListBuckets(models.Daily)
	if err != nil {
		return nil, nil, err
	}

	hours := make([]models.HourlyUsage, 0, 24)
	for _, b := range tail(hourly, 24) {
		label := b.Key
		if len(label) == len("2006-01-02-15") {
			label = label[11:] + ":00"
		}
		hours = append(hours, models.HourlyUsage{Hour: label, Usage: b.Usage, Power: b.AvgPower})
	}

	days := make([]models.DailyUsage, 0, 7)
	for _, b := range tail(daily, 7) {
		days = append(days, models.DailyUsage{Date: b.Key, Usage: b.Usage})
	}
	return hours, days, nil
}

func tail(buckets []models.UsageBucket, n int) []models.UsageBucket {
	if len(buckets) > n {
		return buckets[len(buckets)-n:]
	}
	return buckets
}
