// Package presence turns reader polling into a stream of card presence
// changes.
package presence

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gregLibert/kiosk-card/pkg/observe"
)

// State is the card presence seen by the reader.
type State int

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// Probe answers whether a card currently sits in the reader.
type Probe interface {
	CardPresent(ctx context.Context) (bool, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (bool, error)

func (f ProbeFunc) CardPresent(ctx context.Context) (bool, error) { return f(ctx) }

// Hook is told about every published transition.
type Hook interface {
	PresenceChanged(from, to State)
}

// DefaultInterval is the probe period.
const DefaultInterval = 500 * time.Millisecond

// Monitor polls a Probe and publishes presence on change. New subscribers
// receive the current state first.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *slog.Logger
	hook     Hook
	state    *observe.Value[State]
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithHook(h Hook) Option {
	return func(m *Monitor) {
		m.hook = h
	}
}

// NewMonitor starts in Absent. Nothing is probed until Run or Poll.
func NewMonitor(p Probe, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    p,
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:    observe.New(Absent),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the last published state.
func (m *Monitor) Current() State {
	return m.state.Get()
}

// Subscribe returns a replay-latest stream, closed when ctx is done.
func (m *Monitor) Subscribe(ctx context.Context) <-chan State {
	return m.state.Subscribe(ctx)
}

// Poll probes once and publishes the result. A probe error reads as Absent.
func (m *Monitor) Poll(ctx context.Context) State {
	next := Absent
	present, err := m.probe.CardPresent(ctx)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			m.logger.Warn("presence probe failed", "error", err)
		}
	case present:
		next = Present
	}

	prev := m.state.Get()
	if m.state.Set(next) {
		m.logger.Info("card presence changed", "from", prev, "to", next)
		if m.hook != nil {
			m.hook.PresenceChanged(prev, next)
		}
	}
	return next
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
