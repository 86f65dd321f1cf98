package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterwatch/internal/logging"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/pkg/models"
)

var seriesGranularity models.Granularity

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Resolve a usage chart series",
	Long: `Resolves one usage series the way the dashboard does: from the API server,
then the snapshot file, then generated data. Prints the series and the
source that served it.`,
	RunE: runSeries,
}

func init() {
	seriesCmd.Flags().Var(newChartGranularityValue(models.Hourly, &seriesGranularity), "granularity", "series granularity (10min, hourly, daily, weekly)")
	rootCmd.AddCommand(seriesCmd)
}

func runSeries(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.Discard()
	if verbose {
		var closer io.Closer
		logger, closer, err = newLogger(cfg)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer closer.Close()
	}

	cache, _ := loadCache(ctx, cfg)
	res := resolver.New(resolver.NewHTTPFetcher(cfg.GetBaseURL(), nil), cache, logger, nil).
		Resolve(ctx, seriesGranularity)

	for _, reason := range res.Reasons {
		fmt.Printf("⚠ skipped: %v\n", reason)
	}
	fmt.Printf("\n%s usage from %s:\n", seriesGranularity, res.Tier)
	fmt.Println("------------------------------")
	fmt.Printf("%-16s  %10s\n", "Label", "kWh")
	fmt.Println("------------------------------")
	for i, label := range res.Series.Labels {
		fmt.Printf("%-16s  %10.2f\n", label, res.Series.Data[i])
	}
	fmt.Println("------------------------------")
	fmt.Printf("Total: %.2f kWh, peak %.2f (%d points)\n", res.Series.Sum(), res.Series.Max(), res.Series.Len())
	return nil
}
