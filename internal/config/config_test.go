package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/kiosk-card/pkg/applet"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := fromLookup(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, applet.AID, cfg.AID)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := fromLookup(env(map[string]string{
		"KIOSK_ADMIN_ADDR":       "127.0.0.1:9000",
		"KIOSK_METRICS_ADDR":     "127.0.0.1:9100",
		"KIOSK_AID":              "A0 00 00 00 04 10 10",
		"KIOSK_MASTER_PIN":       "87654321",
		"KIOSK_POLL_INTERVAL":    "250ms",
		"KIOSK_SELECT_ATTEMPTS":  "0",
		"KIOSK_SELECT_BACKOFF":   "2s",
		"KIOSK_TRANSMIT_TIMEOUT": "3s",
		"KIOSK_LOG_LEVEL":        "debug",
		"KIOSK_LOG_FORMAT":       "json",
		"KIOSK_SENTRY_DSN":       "https://key@sentry.example/1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.AdminAddr)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10}, cfg.AID)
	assert.Equal(t, "87654321", cfg.MasterPIN)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 0, cfg.SelectAttempts)
	assert.Equal(t, 2*time.Second, cfg.SelectBackoff)
	assert.Equal(t, 3*time.Second, cfg.TransmitTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "https://key@sentry.example/1", cfg.SentryDSN)
}

func TestFromLookup_Invalid(t *testing.T) {
	_, err := fromLookup(env(map[string]string{
		"KIOSK_AID":             "zz",
		"KIOSK_MASTER_PIN":      "12",
		"KIOSK_POLL_INTERVAL":   "soon",
		"KIOSK_SELECT_ATTEMPTS": "many",
		"KIOSK_LOG_FORMAT":      "xml",
	}))
	require.Error(t, err)

	for _, key := range []string{"KIOSK_AID", "KIOSK_MASTER_PIN", "KIOSK_POLL_INTERVAL", "KIOSK_SELECT_ATTEMPTS", "KIOSK_LOG_FORMAT"} {
		assert.Contains(t, err.Error(), key)
	}
}
