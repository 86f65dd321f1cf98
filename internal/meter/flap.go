package meter

import (
	"math/rand"
	"sync"
	"time"
)

// Flapper simulates occasional connectivity loss. Each Check has a small
// chance of taking the meter offline for a random recovery period.
type Flapper struct {
	Probability float64
	MinRecovery time.Duration
	MaxRecovery time.Duration

	mu           sync.Mutex
	rng          *rand.Rand
	offlineUntil time.Time
}

// NewFlapper returns a flapper with a 2% chance per check and a 5-15s
// recovery
func NewFlapper(rng *rand.Rand) *Flapper {
	return &Flapper{
		Probability: 0.02,
		MinRecovery: 5 * time.Second,
		MaxRecovery: 15 * time.Second,
		rng:         rng,
	}
}

// Check rolls for an outage. It returns true if this check started one.
// A check during an outage does nothing.
func (f *Flapper) Check(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Before(f.offlineUntil) {
		return false
	}
	if f.rng.Float64() >= f.Probability {
		return false
	}
	span := f.MaxRecovery - f.MinRecovery
	recovery := f.MinRecovery + time.Duration(f.rng.Float64()*float64(span))
	f.offlineUntil = now.Add(recovery)
	return true
}

// Online reports whether the meter is reachable at now
func (f *Flapper) Online(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !now.Before(f.offlineUntil)
}

// OfflineUntil returns the end of the current or last outage
func (f *Flapper) OfflineUntil() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offlineUntil
}
