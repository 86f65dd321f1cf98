package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/meterwatch/internal/logging"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection status and usage totals",
	Long:  `Reports the latest stored reading, bucket counts per granularity and today's, this week's and this month's usage.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	latest, err := db.LatestReading()
	if err != nil {
		return fmt.Errorf("reading latest: %w", err)
	}
	records, err := db.CountReadings()
	if err != nil {
		return fmt.Errorf("counting readings: %w", err)
	}

	if latest == nil {
		fmt.Println("No readings collected yet")
	} else {
		fmt.Printf("Meter:        %s (%s)\n", latest.Name, latest.Number)
		fmt.Printf("Last reading: %s (%s)\n", latest.Timestamp.Local().Format("2006-01-02 15:04:05"), humanize.Time(latest.Timestamp))
		fmt.Printf("Remaining:    %.2f kWh, %.2f\n", latest.RemainingPower, latest.RemainingAmount)
	}
	fmt.Printf("Readings:     %s of %s kept\n", humanize.Comma(int64(records)), humanize.Comma(usage.MaxHistory))

	if info, err := os.Stat(cfg.GetSnapshotFile()); err == nil {
		fmt.Printf("Snapshot:     %s, %s, written %s\n", cfg.GetSnapshotFile(), humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	} else {
		fmt.Printf("⚠ Snapshot %s not found\n", cfg.GetSnapshotFile())
	}

	fmt.Println("\nBuckets:")
	for _, g := range models.StoredGranularities {
		n, err := db.CountBuckets(g)
		if err != nil {
			return fmt.Errorf("counting %s buckets: %w", g, err)
		}
		fmt.Printf("  %-8s %s\n", g, humanize.Comma(int64(n)))
	}

	summary, err := usage.NewAggregator(db, logging.Discard()).Summary(time.Now())
	if err != nil {
		return fmt.Errorf("summarizing usage: %w", err)
	}
	fmt.Println("\nUsage:")
	fmt.Printf("  Today:      %.2f kWh\n", summary.Today.Usage)
	fmt.Printf("  This week:  %.2f kWh\n", summary.ThisWeek.Usage)
	fmt.Printf("  This month: %.2f kWh\n", summary.ThisMonth.Usage)
	fmt.Printf("  Last 24h:   %.2f kWh\n", summary.Recent24h)
	return nil
}
