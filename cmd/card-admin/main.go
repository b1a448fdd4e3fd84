// Command card-admin runs the issuing station: it tracks the admin reader
// and serves card initialization and PIN recovery over HTTP.
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
	"github.com/gregLibert/kiosk-card/pkg/admin"
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
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("app", "card-admin")

	if err := crash.Init(cfg.SentryDSN, "card-admin@"+version); err != nil {
		log.Warn("crash reporting disabled", "error", err)
	}
	defer crash.Flush(2 * time.Second)

	if err := run(cfg, log); err != nil {
		log.Error("card-admin stopped", "error", err)
		crash.CaptureError(err, "card-admin", nil)
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
	mgr := admin.NewManager(ch,
		admin.WithAID(cfg.AID),
		admin.WithMasterPIN(cfg.MasterPIN),
		admin.WithLogger(log),
		admin.WithHook(m),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer crash.Recover(log, "presence monitor", true)
		return mon.Run(ctx)
	})
	g.Go(func() error {
		defer crash.Recover(log, "reader state", true)
		return mgr.Run(ctx, mon.Subscribe(ctx))
	})
	g.Go(func() error {
		h := httpapi.New(mgr, log)
		srv := httpapi.NewServer(cfg.AdminAddr, httpapi.NewRouter(h, reg))
		log.Info("serving admin api", "addr", cfg.AdminAddr)
		return httpapi.Serve(ctx, srv)
	})

	log.Info("card-admin started", "version", version)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("card-admin stopped cleanly")
	return nil
}
