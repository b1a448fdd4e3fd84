package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/gregLibert/kiosk-card/pkg/admin"
	"github.com/gregLibert/kiosk-card/pkg/card"
	"github.com/gregLibert/kiosk-card/pkg/presence"
)

func TestObserveTransmit(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTransmit([]byte{0x00, 0x20, 0x00, 0x00, 0x04}, []byte{0x63, 0xC2}, 10*time.Millisecond, nil)
	m.ObserveTransmit([]byte{0x00, 0x20, 0x00, 0x00, 0x04}, []byte{0x90, 0x00}, 10*time.Millisecond, nil)
	m.ObserveTransmit([]byte{0x00, 0xA4, 0x04, 0x00}, nil, time.Second, errors.New("removed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APDUsTotal.WithLabelValues("20", "63C2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APDUsTotal.WithLabelValues("20", "9000")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APDUsTotal.WithLabelValues("A4", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.TransmitDuration))
}

func TestStateGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ReaderStateChanged(admin.Searching, admin.Connected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReaderState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReaderState.WithLabelValues("searching")))

	m.ReadinessChanged(card.PinRequired)
	m.ReadinessChanged(card.Waiting)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Readiness.WithLabelValues("waiting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Readiness.WithLabelValues("pin_required")))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PresenceChanged(presence.Absent, presence.Present)
	m.PresenceChanged(presence.Present, presence.Absent)
	m.PresenceChanged(presence.Absent, presence.Present)
	m.AuthAttempt("authenticate", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PresenceTransitions.WithLabelValues("present")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("authenticate", "success")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransmit(nil, nil, 0, nil)
		m.PresenceChanged(presence.Absent, presence.Present)
		m.ReaderStateChanged(admin.Searching, admin.Error)
		m.ReadinessChanged(card.Invalid)
		m.AuthAttempt("register", "rejected")
	})
}
