package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterwatch/internal/dashboard"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var (
	publishSince string
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored readings to Home Assistant and MQTT",
	Long: `Sends the remaining balance of stored readings to Home Assistant through the
AppDaemon backfill endpoint, oldest first, and publishes the latest meter
state to the MQTT state topic.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish readings since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 1, "Number of most recent readings to publish (0 = all kept readings)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.HomeAssistant.Enabled && !cfg.MQTT.Enabled {
		return fmt.Errorf("neither Home Assistant nor MQTT is enabled in config")
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var since time.Time
	if publishSince != "" {
		if since, err = parseDate(publishSince); err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
	}

	limit := publishLimit
	if limit <= 0 {
		limit = usage.MaxHistory
	}
	readings, err := db.LatestReadings(limit)
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}
	readings = slices.DeleteFunc(readings, func(r models.Reading) bool {
		return !since.IsZero() && r.Timestamp.Before(since)
	})
	if len(readings) == 0 {
		fmt.Println("No readings to publish")
		return nil
	}
	slices.Reverse(readings)

	if cfg.HomeAssistant.Enabled {
		published, failed := 0, 0
		for _, r := range readings {
			if err := pub.PublishState(r); err != nil {
				fmt.Printf("⚠ Failed to publish reading from %s: %v\n", r.UpdateTime, err)
				failed++
				continue
			}
			published++
		}
		fmt.Printf("✓ Published %d readings to Home Assistant (%s)", published, cfg.HomeAssistant.EntityID)
		if failed > 0 {
			fmt.Printf(", %d failed", failed)
		}
		fmt.Println()
	}

	if pub.MQTTEnabled() {
		latest := readings[len(readings)-1]
		snap := models.DefaultSnapshot()
		dashboard.Merge(&snap, models.MeterFileFromReading(latest))
		snap.IsOnline = true
		snap.LastUpdate = latest.Timestamp
		if err := pub.PublishSnapshot(snap); err != nil {
			return fmt.Errorf("publishing meter state: %w", err)
		}
		fmt.Printf("✓ Published meter state to %s/state\n", cfg.GetTopicPrefix())
	}

	return nil
}
