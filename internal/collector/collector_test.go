package collector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterwatch/internal/database"
	"github.com/jgoulah/meterwatch/internal/logging"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/internal/scraper"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

type fakePage struct {
	readings []float64
	err      error
	calls    int
}

func (f *fakePage) Fetch(ctx context.Context, url string) (*models.Reading, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v := f.readings[0]
	f.readings = f.readings[1:]
	return &models.Reading{Name: "meter", Number: "42", RemainingPower: v, RemainingAmount: v, UnitPrice: 1, Status: "success"}, nil
}

type fakeState struct {
	got []models.Reading
}

func (f *fakeState) PublishState(r models.Reading) error {
	f.got = append(f.got, r)
	return nil
}

func newCollector(t *testing.T, page PageFetcher) (*Collector, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2025, 9, 17, 14, 0, 0, 0, time.UTC)
	return &Collector{
		URL:          "http://meter.example",
		UserAgent:    "ua",
		Scraper:      page,
		Aggregator:   usage.NewAggregator(db, logging.Discard()),
		SnapshotFile: filepath.Join(dir, "meter_data.json"),
		Cache:        resolver.NewCache(),
		Logger:       logging.Discard(),
		Now: func() time.Time {
			now = now.Add(time.Hour)
			return now
		},
	}, db
}

func TestCollectRecordsAndWritesSnapshot(t *testing.T) {
	page := &fakePage{readings: []float64{20, 18.5}}
	c, db := newCollector(t, page)
	state := &fakeState{}
	c.Publisher = state

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	r, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18.5, r.RemainingPower)
	assert.Equal(t, r, c.Latest())
	assert.Len(t, state.got, 2)

	n, err := db.CountReadings()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(c.SnapshotFile)
	require.NoError(t, err)
	var file models.MeterFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, 18.5, file.RemainingPower)
	require.Len(t, file.HourlyUsage, 2)
	assert.Equal(t, "16:00", file.HourlyUsage[1].Hour)
	assert.Equal(t, 1.5, file.HourlyUsage[1].Usage)

	series, err := c.Cache.Slice(models.Hourly)
	require.NoError(t, err)
	assert.Equal(t, []string{"15:00", "16:00"}, series.Labels)
}

func TestCollectFallsBackToBrowserWhenBlocked(t *testing.T) {
	page := &fakePage{err: &scraper.BlockedError{URL: "http://meter.example"}}
	c, _ := newCollector(t, page)

	var browserCalls int
	c.Browser = func(ctx context.Context, url, ua string) (*models.Reading, error) {
		browserCalls++
		assert.Equal(t, "ua", ua)
		return &models.Reading{Name: "rendered", RemainingPower: 7}, nil
	}

	r, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rendered", r.Name)
	assert.Equal(t, 1, browserCalls)
}

func TestCollectBlockedWithoutBrowser(t *testing.T) {
	page := &fakePage{err: &scraper.BlockedError{URL: "x"}}
	c, db := newCollector(t, page)

	_, err := c.Collect(context.Background())
	var blocked *scraper.BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Nil(t, c.Latest())

	n, err := db.CountReadings()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	page := &fakePage{err: errors.New("offline")}
	c, _ := newCollector(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return page.calls == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}
