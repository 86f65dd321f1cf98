package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/api"
	"github.com/jgoulah/meterwatch/internal/config"
	"github.com/jgoulah/meterwatch/internal/dashboard"
	"github.com/jgoulah/meterwatch/internal/meter"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var (
	watchListen      string
	watchGranularity models.Granularity
	watchNoSync      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the live dashboard",
	Long: `Runs the live meter dashboard. The meter is simulated between syncs with the
API server, usage charts fall back from the API to the snapshot file to
generated data, and balance and power alerts are raised as thresholds are
crossed. The dashboard is served as JSON at /api/dashboard and pushed over
the /ws/live websocket.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchListen, "listen", ":8081", "dashboard listen address")
	watchCmd.Flags().Var(newChartGranularityValue(models.Hourly, &watchGranularity), "granularity", "initial chart granularity (10min, hourly, daily, weekly)")
	watchCmd.Flags().BoolVar(&watchNoSync, "no-sync", false, "never pull the meter state from the API server")
	rootCmd.AddCommand(watchCmd)
}

// loadCache fills a cache from the local snapshot file, or from the API
// server's copy when there is none
func loadCache(ctx context.Context, cfg *config.Config) (*resolver.Cache, error) {
	cache := resolver.NewCache()
	location := cfg.GetSnapshotFile()
	if _, err := os.Stat(location); err != nil {
		location = cfg.GetBaseURL() + "/meter_data.json"
	}
	file, err := resolver.LoadSnapshotFile(ctx, nil, location)
	if err != nil {
		return cache, fmt.Errorf("loading %s: %w", location, err)
	}
	cache.Store(file)
	return cache, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closer.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, m := newRegistry()

	cache, err := loadCache(ctx, cfg)
	if err != nil {
		logger.Info("snapshot_not_loaded", "error", err)
	}
	fetcher := resolver.NewHTTPFetcher(cfg.GetBaseURL(), nil)
	res := resolver.New(fetcher, cache, logger, m)

	notifier := alert.NewNotifier(logger)
	pub, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	if pub != nil {
		defer pub.Close()
		if pub.MQTTEnabled() {
			notifier.AddSink(pub)
		}
	}

	settings := alert.NewSettingsStore(db, logger)
	th, err := settings.Load()
	if err != nil {
		logger.Warn("alert_settings_load_failed", "error", err)
	}
	evaluator := alert.NewEvaluator(settings)
	for _, gap := range evaluator.Gaps() {
		logger.Warn("alert_threshold_unchecked", "detail", gap)
	}

	board := dashboard.NewBoard(res, notifier)

	deps := dashboard.Deps{
		Board:     board,
		Simulator: meter.NewSimulator(cfg.GetTickInterval()),
		Flapper:   meter.NewFlapper(rand.New(rand.NewSource(time.Now().UnixNano()))),
		Evaluator: evaluator,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    logger,
	}
	if !watchNoSync {
		deps.Source = fetcher
	}
	if pub != nil && pub.MQTTEnabled() {
		deps.Sink = pub
	}

	scheduler := dashboard.NewScheduler(logger, dashboard.Tasks(deps, dashboard.Intervals{
		Tick:         cfg.GetTickInterval(),
		Clock:        cfg.GetClockInterval(),
		Stats:        cfg.GetStatsInterval(),
		ChartRefresh: cfg.GetChartRefreshInterval(),
		FlapCheck:    cfg.GetFlapCheckInterval(),
		Sync:         cfg.GetScrapeInterval(),
	})...)

	srv := api.New(api.Options{
		DB:           db,
		Aggregator:   usage.NewAggregator(db, logger),
		SnapshotFile: cfg.GetSnapshotFile(),
		Board:        board,
		Settings:     settings,
		Gatherer:     reg,
		Logger:       logger,
		PushEvery:    cfg.GetTickInterval(),
	})

	initial := board.Select(ctx, watchGranularity)
	fmt.Printf("Dashboard on %s, %s chart from %s (balance alert %.2f, power alert %.2f kW)\n",
		watchListen, watchGranularity, initial.Tier, th.Balance, th.Power)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return srv.Broadcast(ctx) })
	g.Go(func() error { return srv.Serve(ctx, watchListen) })
	return g.Wait()
}
