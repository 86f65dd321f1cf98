package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/logging"
)

var (
	settingsBalance float64
	settingsPower   float64
	settingsDaily   float64
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change alert thresholds",
	Long: `Shows the alert thresholds stored in the database. Pass --balance, --power or
--daily to change them; thresholds that are not passed keep their value.`,
	RunE: runSettings,
}

func init() {
	settingsCmd.Flags().Float64Var(&settingsBalance, "balance", 0, "alert when the remaining amount falls to this value")
	settingsCmd.Flags().Float64Var(&settingsPower, "power", 0, "alert when current power reaches this many kW")
	settingsCmd.Flags().Float64Var(&settingsDaily, "daily", 0, "daily usage threshold in kWh")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store := alert.NewSettingsStore(db, logging.Discard())
	th, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading alert settings: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("balance") || flags.Changed("power") || flags.Changed("daily") {
		if flags.Changed("balance") {
			th.Balance = settingsBalance
		}
		if flags.Changed("power") {
			th.Power = settingsPower
		}
		if flags.Changed("daily") {
			th.DailyUsage = settingsDaily
		}
		if err := store.Save(th); err != nil {
			return fmt.Errorf("saving alert settings: %w", err)
		}
		th = store.Thresholds()
		fmt.Println("✓ Alert settings saved")
	}

	fmt.Printf("Balance alert:     %.2f\n", th.Balance)
	fmt.Printf("Power alert:       %.2f kW\n", th.Power)
	fmt.Printf("Daily usage alert: %.2f kWh\n", th.DailyUsage)
	for _, gap := range alert.NewEvaluator(store).Gaps() {
		fmt.Printf("⚠ %s\n", gap)
	}
	return nil
}
