package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var (
	listSince       string
	listLimit       int
	listGranularity models.Granularity
	listBuckets     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored readings or usage buckets",
	Long: `Displays the most recent meter readings from the database. With --buckets the
aggregated usage for one granularity is shown instead.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "Only show readings since this date (YYYY-MM-DD or relative like 7d)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of readings to show")
	listCmd.Flags().BoolVar(&listBuckets, "buckets", false, "Show usage buckets instead of readings")
	listCmd.Flags().Var(newGranularityValue(models.Daily, &listGranularity), "granularity", "Bucket granularity (10min, hourly, daily, weekly, monthly)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if listBuckets {
		buckets, err := db.ListBuckets(listGranularity)
		if err != nil {
			return fmt.Errorf("listing %s buckets: %w", listGranularity, err)
		}
		if len(buckets) == 0 {
			fmt.Printf("No %s usage recorded\n", listGranularity)
			return nil
		}

		fmt.Printf("\n%s Usage:\n", listGranularity)
		fmt.Println("--------------------------------------------------")
		fmt.Printf("%-16s  %10s  %6s  %10s\n", "Key", "kWh", "Count", "Avg kWh")
		fmt.Println("--------------------------------------------------")
		var total float64
		for _, b := range buckets {
			fmt.Printf("%-16s  %10.2f  %6d  %10.2f\n", b.Key, b.Usage, b.Count, b.AvgPower)
			total += b.Usage
		}
		fmt.Println("--------------------------------------------------")
		fmt.Printf("Total: %.2f kWh (%d buckets)\n", total, len(buckets))
		return nil
	}

	var since time.Time
	if listSince != "" {
		since, err = parseDate(listSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
	}

	limit := listLimit
	if limit <= 0 || limit > usage.MaxHistory {
		limit = usage.MaxHistory
	}
	readings, err := db.LatestReadings(limit)
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%-20s  %12s  %12s  %8s\n", "Time", "Energy kWh", "Amount", "Price")
	fmt.Println("------------------------------------------------------------")

	shown := 0
	for _, r := range readings {
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		fmt.Printf("%-20s  %12.2f  %12.2f  %8.4f\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.RemainingPower, r.RemainingAmount, r.UnitPrice)
		shown++
	}

	fmt.Println("------------------------------------------------------------")
	fmt.Printf("%d readings\n", shown)
	return nil
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", dateStr)
	if err == nil {
		return t, nil
	}

	// relative format, "7d" is 7 days ago
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(dateStr[:len(dateStr)-1], "%d", &days); err == nil {
			return time.Now().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or relative like 7d)", dateStr)
}
