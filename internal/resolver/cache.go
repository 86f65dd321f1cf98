package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/jgoulah/meterwatch/pkg/models"
)

// Cache keeps the last known good meter snapshot document
type Cache struct {
	mu   sync.RWMutex
	file *models.MeterFile
}

// NewCache returns an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Store replaces the cached snapshot
func (c *Cache) Store(f models.MeterFile) {
	c.mu.Lock()
	c.file = &f
	c.mu.Unlock()
}

// Load returns a copy of the cached snapshot, if any
func (c *Cache) Load() (models.MeterFile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.file == nil {
		return models.MeterFile{}, false
	}
	return *c.file, true
}

// Slice extracts the series for g from the cached snapshot.
// Only hourly and daily usage are embedded in the snapshot document.
func (c *Cache) Slice(g models.Granularity) (models.Series, error) {
	f, ok := c.Load()
	if !ok {
		return models.Series{}, fmt.Errorf("%w: no snapshot cached", ErrCacheMiss)
	}

	switch g {
	case models.Hourly:
		if len(f.HourlyUsage) == 0 {
			break
		}
		s := models.NewSeries(len(f.HourlyUsage))
		for _, h := range f.HourlyUsage {
			s.Append(h.Hour, h.Usage)
		}
		return s, nil
	case models.Daily:
		if len(f.DailyUsage) == 0 {
			break
		}
		s := models.NewSeries(len(f.DailyUsage))
		for _, d := range f.DailyUsage {
			label := d.Date
			if len(label) > 5 {
				label = label[5:]
			}
			s.Append(label, d.Usage)
		}
		return s, nil
	}
	return models.Series{}, fmt.Errorf("%w: snapshot has no %s usage", ErrCacheMiss, g)
}

// LoadSnapshotFile reads a snapshot document from a local path or an
// http(s) URL
func LoadSnapshotFile(ctx context.Context, client *http.Client, location string) (models.MeterFile, error) {
	var data []byte
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return models.MeterFile{}, fmt.Errorf("creating request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return models.MeterFile{}, fmt.Errorf("fetching snapshot: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return models.MeterFile{}, fmt.Errorf("fetching snapshot: status %d", resp.StatusCode)
		}
		if data, err = io.ReadAll(resp.Body); err != nil {
			return models.MeterFile{}, fmt.Errorf("reading snapshot: %w", err)
		}
	} else {
		var err error
		if data, err = os.ReadFile(location); err != nil {
			return models.MeterFile{}, fmt.Errorf("reading snapshot file: %w", err)
		}
	}

	var f models.MeterFile
	if err := json.Unmarshal(data, &f); err != nil {
		return models.MeterFile{}, fmt.Errorf("parsing snapshot file: %w", err)
	}
	return f, nil
}
