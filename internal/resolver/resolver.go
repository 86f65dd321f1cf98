// Package resolver picks the data source for a usage series: the remote
// API, the cached snapshot, or generated data, in that order.
package resolver

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jgoulah/meterwatch/internal/metrics"
	"github.com/jgoulah/meterwatch/internal/synth"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// Tier names the fallback stage that produced a series
type Tier string

const (
	TierRemote    Tier = "remote"
	TierCache     Tier = "cache"
	TierSynthetic Tier = "synthetic"
)

// Resolution is a resolved series and the tier that served it.
// Reasons lists why each earlier tier was skipped.
type Resolution struct {
	Series  models.Series
	Tier    Tier
	Reasons []error
}

// Resolver walks the fallback chain. A nil Fetcher or Cache skips that tier.
type Resolver struct {
	fetcher Fetcher
	cache   *Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a resolver
func New(fetcher Fetcher, cache *Cache, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the time source and random source used for
// synthetic series
func (r *Resolver) WithClock(now func() time.Time, rng *rand.Rand) *Resolver {
	r.now = now
	r.rng = rng
	return r
}

// Resolve always returns a displayable series
func (r *Resolver) Resolve(ctx context.Context, g models.Granularity) Resolution {
	var reasons []error

	if r.fetcher != nil {
		series, err := r.fetcher.Fetch(ctx, g)
		if err == nil {
			return r.served(g, Resolution{Series: series, Tier: TierRemote})
		}
		reasons = r.skip(g, TierRemote, reasons, err)
	}

	if r.cache != nil {
		series, err := r.cache.Slice(g)
		if err == nil {
			return r.served(g, Resolution{Series: series, Tier: TierCache, Reasons: reasons})
		}
		reasons = r.skip(g, TierCache, reasons, err)
	}

	r.mu.Lock()
	series := synth.Generate(g, r.now(), r.rng)
	r.mu.Unlock()
	return r.served(g, Resolution{Series: series, Tier: TierSynthetic, Reasons: reasons})
}

func (r *Resolver) skip(g models.Granularity, tier Tier, reasons []error, err error) []error {
	r.logger.Warn("resolver_tier_skipped",
		"granularity", g,
		"tier", tier,
		"reason", reasonLabel(err),
		"error", err)
	r.metrics.Fallthrough(reasonLabel(err))
	return append(reasons, err)
}

func (r *Resolver) served(g models.Granularity, res Resolution) Resolution {
	r.metrics.Served(g, string(res.Tier))
	r.logger.Debug("resolver_served", "granularity", g, "tier", res.Tier, "points", res.Series.Len())
	return res
}
