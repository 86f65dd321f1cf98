package models

import "fmt"

// Granularity is the time bucketing of a usage series
type Granularity string

const (
	TenMinute Granularity = "10min"
	Hourly    Granularity = "hourly"
	Daily     Granularity = "daily"
	Weekly    Granularity = "weekly"
	Monthly   Granularity = "monthly"
)

// ChartGranularities are the granularities a dashboard chart can display
var ChartGranularities = []Granularity{TenMinute, Hourly, Daily, Weekly}

// StoredGranularities are the granularities the backend aggregates
var StoredGranularities = []Granularity{TenMinute, Hourly, Daily, Weekly, Monthly}

// ParseGranularity converts a string into a Granularity
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case TenMinute, Hourly, Daily, Weekly, Monthly:
		return g, nil
	case "10-minute", "10m":
		return TenMinute, nil
	}
	return "", fmt.Errorf("unknown granularity: %s (available: 10min, hourly, daily, weekly, monthly)", s)
}

// Endpoint returns the API path serving this granularity
func (g Granularity) Endpoint() string {
	return "/api/" + string(g) + "-usage"
}

// Points returns the number of buckets a full chart holds
func (g Granularity) Points() int {
	switch g {
	case TenMinute:
		return 144
	case Hourly:
		return 24
	case Daily:
		return 7
	case Weekly:
		return 4
	case Monthly:
		return 12
	}
	return 0
}

func (g Granularity) String() string {
	return string(g)
}
