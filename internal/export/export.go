package export

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jgoulah/meterwatch/internal/synth"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// Document is the exported dashboard data
type Document struct {
	MeterInfo  models.MeterSnapshot `json:"meterInfo"`
	ExportTime string               `json:"exportTime"`
	DailyData  models.Series        `json:"dailyData"`
	HourlyData models.Series        `json:"hourlyData"`
}

// Build assembles an export of snap with freshly generated daily and hourly series
func Build(snap models.MeterSnapshot, now time.Time, rng *rand.Rand) Document {
	return Document{
		MeterInfo:  snap,
		ExportTime: now.UTC().Format(time.RFC3339),
		DailyData:  synth.Daily(now, rng),
		HourlyData: synth.Hourly(now, rng),
	}
}

// FileName returns the export file name for the day of now
func FileName(now time.Time) string {
	return fmt.Sprintf("meter-export_%s.json", now.Format("2006-01-02"))
}

// Write saves doc as indented JSON in dir and returns the file path
func Write(dir string, doc Document, now time.Time) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(dir, FileName(now))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}
