package alert

import (
	"log/slog"
	"sync"
	"time"
)

// Sink receives every notice raised through a Notifier
type Sink interface {
	Notify(n Notice) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(n Notice) error

func (f SinkFunc) Notify(n Notice) error { return f(n) }

// Notifier holds the single visible notice and fans raised notices out to sinks
type Notifier struct {
	logger *slog.Logger

	mu     sync.Mutex
	active *Notice
	sinks  []Sink
}

// NewNotifier creates a notifier with the given sinks
func NewNotifier(logger *slog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{logger: logger, sinks: sinks}
}

// AddSink attaches another sink
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Raise makes notice the active one, replacing any previous notice
func (n *Notifier) Raise(notice Notice) {
	n.mu.Lock()
	n.active = &notice
	sinks := append([]Sink(nil), n.sinks...)
	n.mu.Unlock()

	n.logger.Info("alert_raised", "id", notice.ID, "kind", string(notice.Kind), "message", notice.Message)
	for _, s := range sinks {
		if err := s.Notify(notice); err != nil {
			n.logger.Warn("alert_sink_failed", "id", notice.ID, "error", err)
		}
	}
}

// Active returns the visible notice at now, dismissing it once expired
func (n *Notifier) Active(now time.Time) (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active == nil {
		return Notice{}, false
	}
	if n.active.Expired(now) {
		n.active = nil
		return Notice{}, false
	}
	return *n.active, true
}
