package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterwatch/internal/collector"
	"github.com/jgoulah/meterwatch/internal/logging"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/internal/scraper"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var (
	fetchURL     string
	fetchBrowser bool
	fetchDryRun  bool
	fetchOut     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Scrape the meter page once",
	Long: `Fetches the meter page a single time and stores the reading in the local
SQLite database. With --dry-run the reading is only printed, and optionally
written to --out.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "meter page URL (default from config)")
	fetchCmd.Flags().BoolVar(&fetchBrowser, "browser", false, "render the page in headless Chrome instead of plain HTTP")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "print the reading without storing it")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "also write the reading as JSON to this file")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fetchURL
	if url == "" {
		url = cfg.Meter.URL
	}
	if url == "" {
		return fmt.Errorf("no meter URL: pass --url or set meter.url in %s", getConfigPath())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	page := scraper.NewMeterScraper(cfg.GetUserAgent())
	var reading *models.Reading

	if fetchDryRun {
		if fetchBrowser {
			reading, err = scraper.BrowserFetch(ctx, url, cfg.GetUserAgent())
		} else {
			reading, err = page.Fetch(ctx, url)
		}
		var blocked *scraper.BlockedError
		if errors.As(err, &blocked) {
			fmt.Println("⚠ The meter page only opens in WeChat. Retry with --browser or set meter.browser_fallback.")
		}
		if err != nil {
			return fmt.Errorf("fetching meter page: %w", err)
		}
	} else {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		coll := &collector.Collector{
			URL:          url,
			UserAgent:    cfg.GetUserAgent(),
			Scraper:      page,
			Aggregator:   usage.NewAggregator(db, logging.Discard()),
			SnapshotFile: cfg.GetSnapshotFile(),
			Cache:        resolver.NewCache(),
			Logger:       logging.Discard(),
		}
		if fetchBrowser || cfg.Meter.BrowserFallback {
			coll.Browser = scraper.BrowserFetch
		}

		reading, err = coll.Collect(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Stored reading and updated %s\n", cfg.GetSnapshotFile())
	}

	fmt.Printf("Meter:            %s (%s)\n", reading.Name, reading.Number)
	fmt.Printf("Remaining energy: %.2f kWh\n", reading.RemainingPower)
	fmt.Printf("Remaining amount: %.2f\n", reading.RemainingAmount)
	fmt.Printf("Unit price:       %.4f\n", reading.UnitPrice)

	if fetchOut != "" {
		if err := scraper.SaveReading(fetchOut, reading); err != nil {
			return err
		}
		fmt.Printf("✓ Saved to %s\n", fetchOut)
	}

	return nil
}
