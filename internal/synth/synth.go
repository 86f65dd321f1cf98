// Package synth generates plausible random usage series for when no real
// data is available. The values are decorative.
package synth

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jgoulah/meterwatch/internal/normalize"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// band is a uniform usage range for part of the day
type band struct {
	min, span float64
}

// hourBand returns the hourly usage range for an hour of day:
// quiet overnight, moderate through the day, heaviest in the evening.
func hourBand(hour int) band {
	switch {
	case hour < 6:
		return band{0.2, 0.5}
	case hour < 18:
		return band{0.5, 1.5}
	default:
		return band{1.0, 2.5}
	}
}

// Generate produces a synthetic series for g ending at now.
// Unknown granularities get an hourly series.
func Generate(g models.Granularity, now time.Time, rng *rand.Rand) models.Series {
	switch g {
	case models.TenMinute:
		return TenMinute(now, rng)
	case models.Daily:
		return Daily(now, rng)
	case models.Weekly:
		return Weekly(now, rng)
	default:
		return Hourly(now, rng)
	}
}

// Hourly returns the last 24 hours, labelled H:00
func Hourly(now time.Time, rng *rand.Rand) models.Series {
	s := models.NewSeries(24)
	for i := 23; i >= 0; i-- {
		t := now.Add(-time.Duration(i) * time.Hour)
		b := hourBand(t.Hour())
		usage := rng.Float64()*b.span + b.min
		s.Append(fmt.Sprintf("%d:00", t.Hour()), normalize.Round(usage, 2))
	}
	return s
}

// TenMinute returns the last 144 ten-minute slots, labelled HH:MM
func TenMinute(now time.Time, rng *rand.Rand) models.Series {
	end := now.Truncate(10 * time.Minute)
	s := models.NewSeries(144)
	for i := 143; i >= 0; i-- {
		t := end.Add(-time.Duration(i) * 10 * time.Minute)
		b := hourBand(t.Hour())
		usage := (rng.Float64()*b.span + b.min) / 6
		s.Append(t.Format("15:04"), normalize.Round(usage, 3))
	}
	return s
}

// Daily returns the last 7 days, labelled M/D, between 8 and 25 kWh
func Daily(now time.Time, rng *rand.Rand) models.Series {
	s := models.NewSeries(7)
	for i := 6; i >= 0; i-- {
		d := now.AddDate(0, 0, -i)
		usage := rng.Float64()*17 + 8
		s.Append(fmt.Sprintf("%d/%d", int(d.Month()), d.Day()), normalize.Round(usage, 1))
	}
	return s
}

// Weekly returns the last 4 weeks, labelled M/D-M/D, between 50 and 150 kWh.
// Weeks start on Sunday.
func Weekly(now time.Time, rng *rand.Rand) models.Series {
	s := models.NewSeries(4)
	for i := 3; i >= 0; i-- {
		d := now.AddDate(0, 0, -i*7)
		start := d.AddDate(0, 0, -int(d.Weekday()))
		end := start.AddDate(0, 0, 6)
		label := fmt.Sprintf("%d/%d-%d/%d", int(start.Month()), start.Day(), int(end.Month()), end.Day())
		usage := rng.Float64()*100 + 50
		s.Append(label, normalize.Round(usage, 1))
	}
	return s
}
