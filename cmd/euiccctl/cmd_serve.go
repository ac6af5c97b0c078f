package main

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/hotplug"
	"github.com/ruminaider/euiccctl/internal/server"
	"github.com/ruminaider/euiccctl/internal/slot"
	"github.com/ruminaider/euiccctl/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and keep every slot's profile list fresh",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// The watcher needs the registry's manager and the registry needs the
	// watcher's signals, so those lookups are bound late.
	var watcher *hotplug.Watcher
	changed := func(id int) <-chan struct{} { return watcher.Changed(id) }
	present := func(id int) bool { return watcher.Present(id) }

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	var log *zap.Logger
	a, err := loadApp(os.Stderr,
		slot.WithMetrics(metrics),
		slot.WithBackgroundRefresh(),
		slot.WithChangeSignals(changed),
		slot.WithDevicePresence(present),
		slot.WithOnTerminate(func(id int) {
			log.Info("slot handle released; it reopens on the next request or when the device returns", zap.Int("slot", id))
		}),
		slot.WithOnRefresh(func(id int, err error) {
			if err != nil {
				log.Warn("background refresh failed", zap.Int("slot", id), zap.Error(err))
			}
		}),
	)
	if err != nil {
		return err
	}
	defer a.Close()
	log = a.log

	watcher = hotplug.NewWatcher(slotDevices(a.cfg), a.reg.Manager(),
		hotplug.WithInterval(a.cfg.Hotplug.Interval),
		hotplug.WithLogger(log))
	events := watcher.Events()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := server.New(a.reg,
		server.WithLogger(log),
		server.WithGatherer(prometheus.DefaultGatherer),
		server.WithVersion(version))

	ctx := cmd.Context()
	for _, id := range a.cfg.SlotIDs() {
		if _, err := a.reg.Session(ctx, id); err != nil {
			log.Warn("slot not available yet", zap.Int("slot", id), zap.Error(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-events:
				if ev.Kind != hotplug.Appeared {
					continue
				}
				if _, err := a.reg.Session(ctx, ev.Slot); err != nil {
					log.Warn("reopening slot failed", zap.Int("slot", ev.Slot), zap.Error(err))
				}
			}
		}
	})

	log.Info("serving", zap.String("addr", addr), zap.String("version", version))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// slotDevices maps lpac slots with a device path to that path.
func slotDevices(cfg config.Config) map[int]string {
	devices := make(map[int]string)
	for _, sc := range cfg.Slots {
		if sc.Backend == config.BackendLpac && sc.Device != "" {
			devices[sc.ID] = sc.Device
		}
	}
	return devices
}
