package models

import "time"

// MeterSnapshot is the in-memory view of a meter's current state
type MeterSnapshot struct {
	Name            string    `json:"name"`
	Number          string    `json:"number"`
	RemainingPower  float64   `json:"remainingPower"`  // kWh
	RemainingAmount float64   `json:"remainingAmount"` // currency
	UnitPrice       float64   `json:"unitPrice"`       // currency per kWh
	CurrentPower    float64   `json:"currentPower"`    // kW
	IsOnline        bool      `json:"isOnline"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

// DefaultSnapshot is the state shown before any data has been loaded
func DefaultSnapshot() MeterSnapshot {
	return MeterSnapshot{
		Name:            "2759-18-402",
		Number:          "18100071580",
		RemainingPower:  14.84,
		RemainingAmount: 14.84,
		UnitPrice:       1.0,
		CurrentPower:    0.85,
		IsOnline:        true,
		LastUpdate:      time.Now(),
	}
}

// DailyStats summarizes today's consumption
type DailyStats struct {
	Usage     float64 `json:"todayUsage"`
	Cost      float64 `json:"todayCost"`
	AvgPower  float64 `json:"avgPower"`
	PeakPower float64 `json:"peakPower"`
}

// HistoryRow is one day in the usage history table
type HistoryRow struct {
	Date     string  `json:"date"`
	Usage    float64 `json:"usage"`
	Cost     float64 `json:"cost"`
	AvgPower float64 `json:"avgPower"`
}

// Reading is a single scrape of the meter page
type Reading struct {
	ID              int       `json:"-"`
	Name            string    `json:"name"`
	Number          string    `json:"number"`
	RemainingPower  float64   `json:"remaining_power"`
	RemainingAmount float64   `json:"remaining_amount"`
	UnitPrice       float64   `json:"unit_price"`
	UpdateTime      string    `json:"update_time"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"` // when the reading was stored
}

// MeterFile is the static snapshot document served as meter_data.json
type MeterFile struct {
	MeterName       string        `json:"meter_name,omitempty"`
	MeterID         string        `json:"meter_id,omitempty"`
	Name            string        `json:"name,omitempty"`
	Number          string        `json:"number,omitempty"`
	RemainingPower  float64       `json:"remaining_power"`
	RemainingAmount float64       `json:"remaining_amount"`
	UnitPrice       float64       `json:"unit_price"`
	CurrentPower    float64       `json:"current_power,omitempty"`
	Status          string        `json:"status,omitempty"`
	UpdateTime      string        `json:"update_time,omitempty"`
	HourlyUsage     []HourlyUsage `json:"hourly_usage,omitempty"`
	DailyUsage      []DailyUsage  `json:"daily_usage,omitempty"`
}

// HourlyUsage is one hour of the embedded snapshot usage
type HourlyUsage struct {
	Hour  string  `json:"hour"`
	Usage float64 `json:"usage"`
	Power float64 `json:"power,omitempty"`
}

// DailyUsage is one day of the embedded snapshot usage
type DailyUsage struct {
	Date  string  `json:"date"`
	Usage float64 `json:"usage"`
}

// DisplayName returns the meter name, preferring meter_name over name
func (f MeterFile) DisplayName() string {
	if f.MeterName != "" {
		return f.MeterName
	}
	return f.Name
}

// DisplayID returns the meter id, preferring meter_id over number
func (f MeterFile) DisplayID() string {
	if f.MeterID != "" {
		return f.MeterID
	}
	return f.Number
}

// Online reports the connectivity the backend put in status. ok is false
// when no status was reported.
func (f MeterFile) Online() (online, ok bool) {
	switch f.Status {
	case "":
		return false, false
	case "online", "success":
		return true, true
	}
	return false, true
}

// MeterFileFromReading converts a scrape into the snapshot document format
func MeterFileFromReading(r Reading) MeterFile {
	return MeterFile{
		Name:            r.Name,
		Number:          r.Number,
		RemainingPower:  r.RemainingPower,
		RemainingAmount: r.RemainingAmount,
		UnitPrice:       r.UnitPrice,
		Status:          r.Status,
		UpdateTime:      r.UpdateTime,
	}
}
