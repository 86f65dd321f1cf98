package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jgoulah/meterwatch/pkg/models"
)

// DisplayFor is how long a notice stays visible
const DisplayFor = 3 * time.Second

// Kind identifies which threshold a notice was raised for
type Kind string

const (
	LowBalance Kind = "low_balance"
	HighPower  Kind = "high_power"
	Info       Kind = "info"
)

// Notice is a transient user-facing alert
type Notice struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raisedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the notice should no longer be shown at now
func (n Notice) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// NewNotice creates a notice raised at now
func NewNotice(kind Kind, message string, now time.Time) Notice {
	return Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		RaisedAt:  now,
		ExpiresAt: now.Add(DisplayFor),
	}
}

// Evaluate checks snap against th and returns at most one notice. A low
// balance takes priority over high power.
func Evaluate(snap models.MeterSnapshot, th models.AlertThresholds, now time.Time) (Notice, bool) {
	switch {
	case snap.RemainingAmount <= th.Balance:
		return NewNotice(LowBalance, fmt.Sprintf("Low balance: %.2f remaining", snap.RemainingAmount), now), true
	case snap.CurrentPower >= th.Power:
		return NewNotice(HighPower, fmt.Sprintf("High power draw: %.2f kW", snap.CurrentPower), now), true
	}
	return Notice{}, false
}

// Evaluator applies the current thresholds from a settings source
type Evaluator struct {
	settings ThresholdSource
}

// ThresholdSource supplies the current alert thresholds
type ThresholdSource interface {
	Thresholds() models.AlertThresholds
}

// NewEvaluator creates an evaluator reading thresholds from src
func NewEvaluator(src ThresholdSource) *Evaluator {
	return &Evaluator{settings: src}
}

// Check evaluates snap against the latest thresholds
func (e *Evaluator) Check(snap models.MeterSnapshot, now time.Time) (Notice, bool) {
	return Evaluate(snap, e.settings.Thresholds(), now)
}

// Gaps lists configured thresholds that are stored but never evaluated
func (e *Evaluator) Gaps() []string {
	return []string{"dailyAlert: daily usage threshold is persisted but not checked"}
}
