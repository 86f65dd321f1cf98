// Package collector runs the scrape loop: fetch the meter page, record the
// reading, rewrite the snapshot file and refresh the resolver cache.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jgoulah/meterwatch/internal/metrics"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/internal/scraper"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// PageFetcher fetches and parses the meter page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*models.Reading, error)
}

// BrowserFunc renders the meter page in a browser
type BrowserFunc func(ctx context.Context, url, userAgent string) (*models.Reading, error)

// StatePublisher receives each new reading
type StatePublisher interface {
	PublishState(r models.Reading) error
}

// Collector performs one scrape cycle at a time
type Collector struct {
	URL          string
	UserAgent    string
	Scraper      PageFetcher
	Browser      BrowserFunc // nil disables the browser fallback
	Aggregator   *usage.Aggregator
	SnapshotFile string
	Cache        *resolver.Cache
	Publisher    StatePublisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Now          func() time.Time

	mu     sync.Mutex
	latest *models.Reading
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Collect scrapes the meter once. When the page refuses the client and a
// browser is configured, the page is rendered in the browser instead.
func (c *Collector) Collect(ctx context.Context) (*models.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, err := c.Scraper.Fetch(ctx, c.URL)
	var blocked *scraper.BlockedError
	if errors.As(err, &blocked) && c.Browser != nil {
		c.Logger.Warn("scrape_blocked", "url", c.URL, "fallback", "browser")
		reading, err = c.Browser(ctx, c.URL, c.UserAgent)
	}
	if err != nil {
		c.Metrics.Scrape(scrapeResult(err))
		return nil, fmt.Errorf("scraping meter: %w", err)
	}
	c.Metrics.Scrape("success")

	now := c.now()
	used, err := c.Aggregator.Record(reading, now)
	if err != nil {
		return nil, fmt.Errorf("recording reading: %w", err)
	}

	if err := c.writeSnapshot(reading); err != nil {
		// the reading is stored; only the snapshot file is stale
		c.Logger.Warn("snapshot_write_failed", "path", c.SnapshotFile, "error", err)
	}

	if c.Publisher != nil {
		if err := c.Publisher.PublishState(*reading); err != nil {
			c.Logger.Warn("publish_state_failed", "error", err)
		}
	}

	c.latest = reading
	c.Logger.Info("meter_scraped",
		"name", reading.Name,
		"remaining_power", reading.RemainingPower,
		"remaining_amount", reading.RemainingAmount,
		"usage", used,
	)
	return reading, nil
}

func (c *Collector) writeSnapshot(r *models.Reading) error {
	file := models.MeterFileFromReading(*r)
	hours, days, err := c.Aggregator.Recent()
	if err != nil {
		return err
	}
	file.HourlyUsage = hours
	file.DailyUsage = days

	if c.Cache != nil {
		c.Cache.Store(file)
	}
	if c.SnapshotFile == "" {
		return nil
	}
	return scraper.SaveSnapshot(c.SnapshotFile, file)
}

// Latest returns the reading from the last successful scrape
func (c *Collector) Latest() *models.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Run scrapes immediately and then every interval until ctx is cancelled.
// Failed scrapes are logged and retried on the next tick.
func (c *Collector) Run(ctx context.Context, every time.Duration) error {
	c.runOnce(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Collector) runOnce(ctx context.Context) {
	if _, err := c.Collect(ctx); err != nil && ctx.Err() == nil {
		c.Logger.Error("scrape_failed", "url", c.URL, "error", err)
	}
}

func scrapeResult(err error) string {
	var blocked *scraper.BlockedError
	if errors.As(err, &blocked) {
		return "blocked"
	}
	return "error"
}
