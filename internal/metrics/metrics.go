// Package metrics exposes kiosk and admin-station counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gregLibert/kiosk-card/pkg/admin"
	"github.com/gregLibert/kiosk-card/pkg/card"
	"github.com/gregLibert/kiosk-card/pkg/presence"
)

// Metrics implements the transmit observer and the presence, reader-state
// and auth hooks.
type Metrics struct {
	APDUsTotal          *prometheus.CounterVec
	TransmitDuration    *prometheus.HistogramVec
	PresenceTransitions *prometheus.CounterVec
	ReaderState         *prometheus.GaugeVec
	Readiness           *prometheus.GaugeVec
	AuthAttempts        *prometheus.CounterVec
}

// New registers every metric on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		APDUsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_apdus_total",
			Help: "Command APDUs sent, by instruction byte and status word",
		}, []string{"ins", "sw"}),
		TransmitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kiosk_transmit_duration_seconds",
			Help:    "Reader round-trip time per instruction",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"ins"}),
		PresenceTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_presence_transitions_total",
			Help: "Card presence changes, by new state",
		}, []string{"to"}),
		ReaderState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kiosk_reader_state",
			Help: "1 for the admin reader's current state, 0 otherwise",
		}, []string{"state"}),
		Readiness: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kiosk_card_readiness",
			Help: "1 for the kiosk card's current readiness, 0 otherwise",
		}, []string{"readiness"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kiosk_auth_attempts_total",
			Help: "Challenge-response attempts, by operation and result",
		}, []string{"op", "result"}),
	}
}

// ObserveTransmit records one driver call. A failed call has sw "error".
func (m *Metrics) ObserveTransmit(cmd, resp []byte, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	ins := "none"
	if len(cmd) >= 2 {
		ins = fmt.Sprintf("%02X", cmd[1])
	}
	sw := "error"
	if err == nil && len(resp) >= 2 {
		sw = fmt.Sprintf("%02X%02X", resp[len(resp)-2], resp[len(resp)-1])
	}
	m.APDUsTotal.WithLabelValues(ins, sw).Inc()
	m.TransmitDuration.WithLabelValues(ins).Observe(elapsed.Seconds())
}

func (m *Metrics) PresenceChanged(_, to presence.State) {
	if m == nil {
		return
	}
	m.PresenceTransitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) ReaderStateChanged(_, to admin.ReaderState) {
	if m == nil {
		return
	}
	for s := admin.Disconnected; s <= admin.Error; s++ {
		m.ReaderState.WithLabelValues(s.String()).Set(oneIf(s == to))
	}
}

// ReadinessChanged tracks the kiosk poller.
func (m *Metrics) ReadinessChanged(r card.Readiness) {
	if m == nil {
		return
	}
	for s := card.Waiting; s <= card.Invalid; s++ {
		m.Readiness.WithLabelValues(s.String()).Set(oneIf(s == r))
	}
}

func (m *Metrics) AuthAttempt(op, result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(op, result).Inc()
}

func oneIf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
