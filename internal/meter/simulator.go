// Package meter simulates a live meter between polls of the real one.
package meter

import (
	"math"
	"math/rand"
	"time"

	"github.com/jgoulah/meterwatch/pkg/models"
)

const (
	// MaxPower is the upper bound of simulated power in kW
	MaxPower = 5.0
	// powerStep is the width of the per-tick random perturbation
	powerStep = 0.3
)

// Simulator advances a snapshot once per tick. It is a bounded random walk,
// not a physical model.
type Simulator struct {
	Interval time.Duration
	Rand     *rand.Rand
	Now      func() time.Time
}

// NewSimulator creates a simulator for the given tick interval
func NewSimulator(interval time.Duration) *Simulator {
	return &Simulator{
		Interval: interval,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:      time.Now,
	}
}

// Tick perturbs power, drains the energy balance by one tick's consumption
// and recomputes the monetary balance
func (s *Simulator) Tick(snap *models.MeterSnapshot) {
	variation := (s.Rand.Float64() - 0.5) * powerStep
	snap.CurrentPower = clamp(snap.CurrentPower+variation, 0, MaxPower)

	consumed := snap.CurrentPower / s.ticksPerHour()
	snap.RemainingPower = math.Max(0, snap.RemainingPower-consumed)
	snap.RemainingAmount = snap.RemainingPower * snap.UnitPrice
	snap.LastUpdate = s.Now()
}

func (s *Simulator) ticksPerHour() float64 {
	if s.Interval <= 0 {
		return float64(time.Hour / time.Second)
	}
	return float64(time.Hour) / float64(s.Interval)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
