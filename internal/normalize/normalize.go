// Package normalize converts keyed usage payloads into chart-ready series.
package normalize

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jgoulah/meterwatch/pkg/models"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept for API values
const Precision = 3

// Normalize turns an API payload into a Series ordered by key.
// Keys are zero-padded date strings, so lexical order is chronological.
func Normalize(payload map[string]json.RawMessage, g models.Granularity) models.Series {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	series := models.NewSeries(len(keys))
	for _, k := range keys {
		series.Append(Label(k, g), Round(Value(payload[k]), Precision))
	}
	return series
}

// Label derives the display label for a bucket key.
// Keys that do not match the granularity's format are returned unchanged.
func Label(key string, g models.Granularity) string {
	switch g {
	case models.Hourly:
		// 2025-09-17-14
		parts := strings.Split(key, "-")
		if len(parts) < 4 {
			return key
		}
		return parts[1] + "/" + parts[2] + " " + parts[3] + ":00"
	case models.Daily:
		// 2025-09-17
		parts := strings.Split(key, "-")
		if len(parts) < 3 {
			return key
		}
		return parts[1] + "/" + parts[2]
	case models.TenMinute:
		// 2025-09-17 14:30
		parts := strings.Split(key, " ")
		if len(parts) < 2 {
			return key
		}
		return parts[1]
	default:
		return key
	}
}

// Value extracts a usage figure from either a bare number or an object
// with a usage field. Anything else counts as zero.
func Value(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var obj struct {
		Usage *float64 `json:"usage"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Usage != nil {
		return *obj.Usage
	}
	return 0
}

// Round rounds half away from zero to the given number of places
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
