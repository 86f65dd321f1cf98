package models

// UsageBucket holds the consumption aggregated into one time bucket
type UsageBucket struct {
	Granularity Granularity `json:"-"`
	Key         string      `json:"-"`
	Usage       float64     `json:"usage"`
	Count       int         `json:"count"`
	AvgPower    float64     `json:"avg_power"`
	PeakPower   *float64    `json:"peak_power,omitempty"` // daily buckets only
}

// UsageSummary is the payload of the usage-summary endpoint
type UsageSummary struct {
	Today        UsageBucket `json:"today"`
	ThisWeek     UsageBucket `json:"this_week"`
	ThisMonth    UsageBucket `json:"this_month"`
	Recent24h    float64     `json:"recent_24h"`
	CurrentPower float64     `json:"current_power"`
}

// AlertThresholds are the user-configured alert limits
type AlertThresholds struct {
	Balance    float64 `json:"balanceAlert"`
	Power      float64 `json:"powerAlert"`
	DailyUsage float64 `json:"dailyAlert"`
}

// DefaultThresholds returns the thresholds used when none are stored
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{Balance: 10, Power: 3, DailyUsage: 20}
}
