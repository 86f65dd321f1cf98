package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/api"
	"github.com/jgoulah/meterwatch/internal/collector"
	"github.com/jgoulah/meterwatch/internal/config"
	"github.com/jgoulah/meterwatch/internal/metrics"
	"github.com/jgoulah/meterwatch/internal/publisher"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/internal/scraper"
	"github.com/jgoulah/meterwatch/internal/usage"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scrape loop and the HTTP API",
	Long: `Scrapes the meter page once at startup and then on the configured interval.
Each reading is recorded into usage buckets, written to the snapshot file and
served over the HTTP API.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func newRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.New(reg)
}

// newPublisher returns nil when neither MQTT nor Home Assistant is enabled
func newPublisher(cfg *config.Config) (*publisher.Publisher, error) {
	if !cfg.MQTT.Enabled && !cfg.HomeAssistant.Enabled {
		return nil, nil
	}
	cfg.MQTT.TopicPrefix = cfg.GetTopicPrefix()
	return publisher.New(cfg.MQTT, cfg.HomeAssistant)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Meter.URL == "" {
		return fmt.Errorf("meter.url is not set in %s", getConfigPath())
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

	reg, m := newRegistry()
	agg := usage.NewAggregator(db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := resolver.NewCache()
	if file, err := resolver.LoadSnapshotFile(ctx, nil, cfg.GetSnapshotFile()); err == nil {
		cache.Store(file)
	} else {
		logger.Info("snapshot_not_loaded", "path", cfg.GetSnapshotFile(), "error", err)
	}

	coll := &collector.Collector{
		URL:          cfg.Meter.URL,
		UserAgent:    cfg.GetUserAgent(),
		Scraper:      scraper.NewMeterScraper(cfg.GetUserAgent()),
		Aggregator:   agg,
		SnapshotFile: cfg.GetSnapshotFile(),
		Cache:        cache,
		Metrics:      m,
		Logger:       logger,
	}
	if cfg.Meter.BrowserFallback {
		coll.Browser = scraper.BrowserFetch
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	if pub != nil {
		defer pub.Close()
		if cfg.HomeAssistant.Enabled {
			coll.Publisher = pub
		}
	}

	settings := alert.NewSettingsStore(db, logger)
	if _, err := settings.Load(); err != nil {
		logger.Warn("alert_settings_load_failed", "error", err)
	}

	listen := serveListen
	if listen == "" {
		listen = cfg.GetListen()
	}

	srv := api.New(api.Options{
		DB:           db,
		Aggregator:   agg,
		Refresher:    coll,
		SnapshotFile: cfg.GetSnapshotFile(),
		Settings:     settings,
		Gatherer:     reg,
		Logger:       logger,
	})

	fmt.Printf("Serving meter %s on %s (scrape every %s)\n", cfg.Meter.URL, listen, cfg.GetScrapeInterval())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coll.Run(ctx, cfg.GetScrapeInterval()) })
	g.Go(func() error { return srv.Serve(ctx, listen) })
	return g.Wait()
}
