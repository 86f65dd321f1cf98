package main

import (
	"fmt"
	"slices"

	"github.com/jgoulah/meterwatch/pkg/models"
	"github.com/spf13/pflag"
)

// granularityValue is a flag that only accepts known granularities, and
// only the allowed ones when allowed is set
type granularityValue struct {
	g       *models.Granularity
	allowed []models.Granularity
}

var _ pflag.Value = granularityValue{}

func newGranularityValue(def models.Granularity, p *models.Granularity) granularityValue {
	*p = def
	return granularityValue{g: p}
}

// newChartGranularityValue accepts only granularities a dashboard chart can show
func newChartGranularityValue(def models.Granularity, p *models.Granularity) granularityValue {
	v := newGranularityValue(def, p)
	v.allowed = models.ChartGranularities
	return v
}

func (v granularityValue) String() string {
	if v.g == nil {
		return ""
	}
	return string(*v.g)
}

func (v granularityValue) Set(s string) error {
	g, err := models.ParseGranularity(s)
	if err != nil {
		return err
	}
	if v.allowed != nil && !slices.Contains(v.allowed, g) {
		return fmt.Errorf("%s is not a chart granularity (available: 10min, hourly, daily, weekly)", g)
	}
	*v.g = g
	return nil
}

func (v granularityValue) Type() string {
	return "granularity"
}
