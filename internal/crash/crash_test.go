package crash

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captured) all() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func withSentry(t *testing.T) *captured {
	t.Helper()
	c := &captured{}
	require.NoError(t, initWith(sentry.ClientOptions{
		Dsn:        "https://public@sentry.invalid/1",
		BeforeSend: c.beforeSend,
	}))
	t.Cleanup(func() { enabled.Store(false) })
	return c
}

func TestInit_EmptyDSNDisables(t *testing.T) {
	require.NoError(t, Init("", "kiosk@test"))
	assert.False(t, Enabled())

	// Disabled reporting must not touch the hub.
	CaptureError(errors.New("reader gone"), "poller", nil)
	Flush(0)
}

func TestRecover_Swallows(t *testing.T) {
	c := withSentry(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	func() {
		defer Recover(log, "presence-monitor", false)
		panic("driver fault")
	}()

	assert.Contains(t, buf.String(), "presence-monitor")
	assert.Contains(t, buf.String(), "driver fault")

	events := c.all()
	require.Len(t, events, 1)
	assert.Equal(t, "presence-monitor", events[0].Tags["panic_context"])
	assert.Equal(t, sentry.LevelFatal, events[0].Level)
}

func TestRecover_RePanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer Recover(nil, "http", true)
		panic("boom")
	})
}

func TestCaptureError(t *testing.T) {
	c := withSentry(t)

	CaptureError(errors.New("select refused"), "admin", map[string]any{"reader": "ACS"})
	CaptureError(nil, "admin", nil)

	events := c.all()
	require.Len(t, events, 1)
	assert.Equal(t, "admin", events[0].Tags["error_context"])
	assert.Equal(t, "ACS", events[0].Extra["reader"])
}
