// Command kiosk-card drives the member-facing kiosk reader: it watches card
// presence, selects the applet on insertion and publishes card readiness.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/gregLibert/kiosk-card/internal/config"
	"github.com/gregLibert/kiosk-card/internal/crash"
	"github.com/gregLibert/kiosk-card/internal/httpapi"
	"github.com/gregLibert/kiosk-card/internal/logger"
	"github.com/gregLibert/kiosk-card/internal/metrics"
	"github.com/gregLibert/kiosk-card/pkg/card"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
	"github.com/gregLibert/kiosk-card/pkg/pcsc"
	"github.com/gregLibert/kiosk-card/pkg/presence"
)

var version = "dev"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("app", "kiosk")

	if err := crash.Init(cfg.SentryDSN, "kiosk-card@"+version); err != nil {
		log.Warn("crash reporting disabled", "error", err)
	}
	defer crash.Flush(2 * time.Second)

	if err := run(cfg, log); err != nil {
		log.Error("kiosk stopped", "error", err)
		crash.CaptureError(err, "kiosk", nil)
		crash.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tr, err := pcsc.Open()
	if err != nil {
		return err
	}
	defer tr.Close()
	probe, err := pcsc.OpenProbe()
	if err != nil {
		return err
	}
	defer probe.Close()

	ch := iso7816.NewChannel(tr,
		iso7816.WithTransmitTimeout(cfg.TransmitTimeout),
		iso7816.WithObserver(m),
	)
	mon := presence.NewMonitor(probe,
		presence.WithInterval(cfg.PollInterval),
		presence.WithLogger(log),
		presence.WithHook(m),
	)
	mgr := card.NewManager(ch, card.WithAID(cfg.AID), card.WithLogger(log))
	poller := card.NewPoller(mgr,
		card.WithAttempts(cfg.SelectAttempts),
		card.WithBackoff(cfg.SelectBackoff),
		card.WithPollerLogger(log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer crash.Recover(log, "presence monitor", true)
		return mon.Run(ctx)
	})
	g.Go(func() error {
		defer crash.Recover(log, "selection poller", true)
		return poller.Run(ctx, mon.Subscribe(ctx))
	})
	g.Go(func() error {
		defer crash.Recover(log, "readiness", true)
		for r := range poller.Subscribe(ctx) {
			m.ReadinessChanged(r)
			log.Info("card readiness", "state", r.String())
		}
		return nil
	})
	g.Go(func() error {
		srv := httpapi.NewServer(cfg.MetricsAddr, httpapi.NewOpsRouter(log, reg))
		log.Info("serving metrics", "addr", cfg.MetricsAddr)
		return httpapi.Serve(ctx, srv)
	})

	log.Info("kiosk started", "version", version)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("kiosk stopped cleanly")
	return nil
}
