// Package config reads process configuration from KIOSK_* environment
// variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gregLibert/kiosk-card/pkg/admin"
	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/card"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
	"github.com/gregLibert/kiosk-card/pkg/presence"
)

// Config is shared by the kiosk and the admin station.
type Config struct {
	AdminAddr       string
	MetricsAddr     string
	AID             []byte
	MasterPIN       string
	PollInterval    time.Duration
	SelectAttempts  int
	SelectBackoff   time.Duration
	TransmitTimeout time.Duration
	LogLevel        string
	LogFormat       string
	SentryDSN       string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		AdminAddr:       ":8090",
		MetricsAddr:     ":9091",
		AID:             applet.AID,
		MasterPIN:       admin.DefaultMasterPIN,
		PollInterval:    presence.DefaultInterval,
		SelectAttempts:  card.DefaultSelectAttempts,
		SelectBackoff:   card.DefaultSelectBackoff,
		TransmitTimeout: iso7816.DefaultTransmitTimeout,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// FromEnv overlays set variables on Default. Every malformed variable is
// reported.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}

	str("KIOSK_ADMIN_ADDR", &cfg.AdminAddr)
	str("KIOSK_METRICS_ADDR", &cfg.MetricsAddr)
	str("KIOSK_MASTER_PIN", &cfg.MasterPIN)
	str("KIOSK_LOG_LEVEL", &cfg.LogLevel)
	str("KIOSK_LOG_FORMAT", &cfg.LogFormat)
	str("KIOSK_SENTRY_DSN", &cfg.SentryDSN)
	dur("KIOSK_POLL_INTERVAL", &cfg.PollInterval)
	dur("KIOSK_SELECT_BACKOFF", &cfg.SelectBackoff)
	dur("KIOSK_TRANSMIT_TIMEOUT", &cfg.TransmitTimeout)

	if v, ok := lookup("KIOSK_SELECT_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("KIOSK_SELECT_ATTEMPTS: invalid count %q", v))
		} else {
			cfg.SelectAttempts = n
		}
	}

	if v, ok := lookup("KIOSK_AID"); ok && v != "" {
		aid, err := hex.DecodeString(strings.ReplaceAll(v, " ", ""))
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("KIOSK_AID: %w", err))
		case len(aid) < 5 || len(aid) > 16:
			errs = append(errs, fmt.Errorf("KIOSK_AID: %d bytes, want 5 to 16", len(aid)))
		default:
			cfg.AID = aid
		}
	}

	if err := applet.ValidatePIN(cfg.MasterPIN); err != nil {
		errs = append(errs, fmt.Errorf("KIOSK_MASTER_PIN: %w", err))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("KIOSK_LOG_FORMAT: %q, want text or json", cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
