// cmd/modbus-alert/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MysteriaLV/modbus-alert/internal/alert"
	"github.com/MysteriaLV/modbus-alert/internal/clock"
	"github.com/MysteriaLV/modbus-alert/internal/config"
	"github.com/MysteriaLV/modbus-alert/internal/gpio"
	"github.com/MysteriaLV/modbus-alert/internal/metrics"
	"github.com/MysteriaLV/modbus-alert/internal/poller"
	rtu "github.com/MysteriaLV/modbus-alert/internal/poller/modbus"
	"github.com/MysteriaLV/modbus-alert/internal/publish"
	"github.com/MysteriaLV/modbus-alert/internal/status"
	"github.com/MysteriaLV/modbus-alert/internal/writer"
)

func main() {
	var s settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: "MODBUS_ALERT_"}); err != nil {
		fmt.Fprintf(os.Stderr, "could not parse env: %v\n", err)
		os.Exit(2)
	}
	if len(os.Args) > 1 {
		s.ConfigPath = os.Args[1]
	}

	log, err := newLogger(s, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	if err := run(s, log); err != nil {
		log.Fatal().Err(err).Msg("modbus-alert stopped")
	}
}

func run(s settings, log zerolog.Logger) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return err
	}

	rejected, err := config.Validate(cfg)
	for _, r := range rejected {
		log.Error().
			Int("index", r.Index).
			Uint8("address", r.Address).
			Str("field", r.Field).
			Msg(r.Reason + ", device disabled")
	}
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	disabled := config.Disabled(cfg, rejected)
	config.Normalize(cfg, rejected)

	logStartup(log, s, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// --------------------
	// Local I/O
	// --------------------

	drv, err := gpio.Open()
	if err != nil {
		return err
	}
	defer drv.Close()

	lio := buildIO(cfg, drv)

	// --------------------
	// Bus
	// --------------------

	clk := clock.System{}

	tr, err := rtu.Open(transportConfig(cfg), clk)
	if err != nil {
		return err
	}
	defer tr.Close()
	go watchBus(ctx, tr.Failed(), cancel, log)

	// --------------------
	// Result handlers (correlator first)
	// --------------------

	corr, err := alert.New(alert.Config{
		On:  ms(cfg.Alarm.OnMs),
		Off: ms(cfg.Alarm.OffMs),
	}, lio.alarm, lio.switches, log)
	if err != nil {
		return err
	}

	handlers := []poller.ResultHandler{corr}

	var emit func(status.Update)
	if plan, ok := writer.BuildPlan(cfg, disabled); ok {
		mirror, err := writer.NewMirror(plan, writer.TCPDialer(plan), log)
		if err != nil {
			return err
		}
		emit = func(u status.Update) { mirror.Submit(u) }
		go func() {
			if err := mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("status mirror stopped")
			}
		}()
	}

	tracker := status.NewTracker(cfg.Addresses(), staleWindow(cfg), emit)
	handlers = append(handlers, tracker, metrics.Observer{})

	if m := cfg.MQTT; m != nil {
		clientID := m.ClientID
		if clientID == "" {
			clientID = "modbus-alert"
		}
		pub, err := publish.Connect(publish.Config{
			Broker:   m.Broker,
			ClientID: clientID + "-" + uuid.New().String(),
			Topic:    m.Topic,
			QOS:      m.QOS,
		}, deviceNames(cfg), log)
		if err != nil {
			return err
		}
		defer pub.Close()
		handlers = append(handlers, pub)
	}

	p, err := poller.New(pollerConfig(cfg), tr, lio.direction, handlers, log)
	if err != nil {
		return err
	}

	// --------------------
	// Metrics endpoint
	// --------------------

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// --------------------
	// Loop: inputs, poller, outputs
	// --------------------

	sched := &gpio.Scheduler{}
	sched.Add(lio.buttons...)
	sched.Add(tracker, lio.alarm)

	poller.Run(ctx, clk, ms(cfg.Poll.TickMs), p, sched)

	log.Info().Msg("shutting down")
	if err := context.Cause(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
