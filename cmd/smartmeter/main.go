// Command smartmeter counts electricity meter pulses from an optical sensor
// and publishes the running count to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/sweeney/smartmeter/internal/config"
	"github.com/sweeney/smartmeter/internal/gpio"
	"github.com/sweeney/smartmeter/internal/indicator"
	"github.com/sweeney/smartmeter/internal/logging"
	"github.com/sweeney/smartmeter/internal/logic"
	"github.com/sweeney/smartmeter/internal/meter"
	"github.com/sweeney/smartmeter/internal/mqtt"
	"github.com/sweeney/smartmeter/internal/provision"
	"github.com/sweeney/smartmeter/internal/status"
	"github.com/sweeney/smartmeter/internal/store"
	"github.com/sweeney/smartmeter/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		// The supervisor restarts us; a fresh process starts from a zero count.
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) (err error) {
	reader, err := gpio.NewRealReader(cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	st := store.NewOnDisk(cfg.StateDir, logger)

	if cfg.PrintState {
		return printState(os.Stdout, reader, st)
	}

	led, err := gpio.NewRealOutput(cfg.Chip, cfg.PinLED)
	if err != nil {
		return fmt.Errorf("init led: %w", err)
	}
	defer led.Close()
	blinker := indicator.NewBlinker(led, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			logger.Info("received signal, shutting down", "signal", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	station := provision.NewNMStation(cfg.WiFiIface, logger)
	ctrl := provision.NewController(provision.Config{
		Station:        station,
		Portal:         web.NewPortal(cfg.PortalAddr, logger),
		Store:          st,
		Indicator:      blinker,
		APName:         cfg.APName,
		ConnectTimeout: cfg.ConnectTimeout,
		PortalTimeout:  cfg.PortalTimeout,
		Logger:         logger,
	})

	devCfg, err := meter.Setup(ctx, st, reader, ctrl, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("setup failed, restarting", "error", err, "delay", cfg.RestartDelay)
		time.Sleep(cfg.RestartDelay)
		return err
	}

	client := mqtt.NewPahoClient(mqtt.PahoConfig{
		BrokerURL: devCfg.BrokerURL(),
		MeterID:   devCfg.MeterID(),
		Logger:    logger,
	})
	defer func() {
		// A restart drops the session without a goodbye; the will reports offline.
		if !errors.Is(err, meter.ErrRestartRequested) {
			client.Close()
		}
	}()

	publisher := mqtt.NewPublisher(client, mqtt.PublisherConfig{
		MeterID:           devCfg.MeterID(),
		PublishInterval:   cfg.PublishInterval,
		ReconnectInterval: cfg.ReconnectInterval,
		Logger:            logger,
	})

	tracker := status.NewTracker(time.Now(), uuid.NewString(), status.Config{
		PollMs:              cfg.Poll.Milliseconds(),
		DebounceMs:          cfg.Debounce.Milliseconds(),
		PublishIntervalMs:   cfg.PublishInterval.Milliseconds(),
		ReconnectIntervalMs: cfg.ReconnectInterval.Milliseconds(),
		Broker:              devCfg.BrokerURL(),
		MeterID:             devCfg.MeterID(),
		Topic:               publisher.Topic(),
		HTTPAddr:            cfg.HTTPAddr,
	})
	tracker.SetAddress(station.Address())

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	start := time.Now()
	dev := meter.New(meter.Config{
		Reader:    reader,
		Blinker:   blinker,
		Publisher: publisher,
		Tracker:   tracker,
		Debounce:  cfg.Debounce,
		Blink:     cfg.Blink,
		Logger:    logger,
	}, start)

	logger.Info("started",
		"poll", cfg.Poll,
		"debounce", cfg.Debounce,
		"broker", devCfg.BrokerURL(),
		"topic", publisher.Topic(),
		"publish_interval", cfg.PublishInterval,
	)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	return runLoop(ctx, dev, time.Now, ticker.C, logger)
}

// runLoop ticks the device until ctx ends or the device asks for a restart.
func runLoop(ctx context.Context, dev *meter.Device, now func() time.Time, tick <-chan time.Time, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped", "count", dev.Count())
			return nil
		case <-tick:
			if err := dev.Tick(now()); err != nil {
				return err
			}
		}
	}
}

func printState(w io.Writer, reader gpio.Reader, st *store.Store) error {
	sensor, button, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	cfg, loadErr := st.Load()
	fmt.Fprintf(w, "sensor: %s, button: %s\n", logic.StateOf(sensor), buttonState(button))
	if loadErr != nil {
		fmt.Fprintf(w, "config: %s (defaults: %v)\n", cfg, loadErr)
	} else {
		fmt.Fprintf(w, "config: %s\n", cfg)
	}
	fmt.Fprintf(w, "topic: %s\n", mqtt.Topic(cfg.MeterID()))
	return nil
}

func buttonState(pressed bool) string {
	if pressed {
		return "pressed"
	}
	return "released"
}
