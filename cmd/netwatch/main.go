package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iolloyd/netwatch/internal/capture"
	"github.com/iolloyd/netwatch/internal/config"
	"github.com/iolloyd/netwatch/internal/hosting"
	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/metrics"
	"github.com/iolloyd/netwatch/internal/procs"
	"github.com/iolloyd/netwatch/internal/reconcile"
	"github.com/iolloyd/netwatch/internal/report"
	"github.com/iolloyd/netwatch/internal/resolver"
	"github.com/iolloyd/netwatch/internal/watcher"
	"github.com/iolloyd/netwatch/internal/websocket"
)

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(2)
	}

	log := logging.Default(cfg.Verbose)
	if err := run(cfg, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// parseArgs merges the optional config file with flags and positional
// targets. Flags win over the file; positional targets replace the file's.
func parseArgs(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("netwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: netwatch [flags] [target ...]")
		fmt.Fprintln(stderr, "targets are process names, pids, or slot:<pool>/proc:<name>; none means all processes")
		fs.PrintDefaults()
	}

	var (
		configPath = fs.String("config", "", "YAML config file")
		interval   = fs.Duration("interval", config.DefaultInterval, "Delay between observations")
		verbose    = fs.Bool("v", false, "Enable verbose logging")
		listen     = fs.String("listen", "", "Serve reports, /health and /metrics on this address")
		maxClients = fs.Int("max-clients", 0, "Maximum concurrent report connections")
		netstat    = fs.String("netstat", "", "Path to the netstat binary")
		appcmd     = fs.String("appcmd", "", "Path to appcmd.exe")
		noSlots    = fs.Bool("no-slots", false, "Disable worker-process slot lookups")
	)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			cfg.Interval = *interval
		case "v":
			cfg.Verbose = *verbose
		case "listen":
			cfg.Listen = *listen
		case "max-clients":
			cfg.MaxClients = *maxClients
		case "netstat":
			cfg.Netstat = *netstat
		case "appcmd":
			cfg.AppCmd = *appcmd
		case "no-slots":
			cfg.NoSlots = *noSlots
		}
	})

	if fs.NArg() > 0 {
		cfg.Targets = cfg.Targets[:0]
		for _, arg := range fs.Args() {
			cfg.Targets = append(cfg.Targets, config.ParseTargetArg(arg))
		}
	}

	return cfg, cfg.Validate()
}

func slotRegistry(cfg config.Config, log *logging.Logger) hosting.Registry {
	if cfg.NoSlots {
		return hosting.None{}
	}
	path := cfg.AppCmd
	if path == "" {
		path = hosting.DefaultAppCmdPath
	}
	if !hosting.Available(path) {
		log.Debugf("Slot registry %s not available", path)
		return hosting.None{}
	}
	return hosting.NewAppCmd(path, cfg.SlotCacheTTL)
}

func buildTracker(cfg config.Config, sink report.Sink, log *logging.Logger) (watcher.Tracker, error) {
	table := procs.System()
	if len(cfg.Targets) == 0 {
		return reconcile.NewDiscovery(table, log), nil
	}

	targets, err := cfg.LogicalTargets()
	if err != nil {
		return nil, err
	}
	res := resolver.New(table, slotRegistry(cfg, log), sink.Diagnostic)
	return reconcile.NewNamed(targets, res, table, log), nil
}

func run(cfg config.Config, log *logging.Logger) error {
	log.Debugf("Starting netwatch, interval %s, %d target(s)", cfg.Interval, len(cfg.Targets))

	lister := capture.NewNetstat(cfg.Netstat, log)
	collector := metrics.New()
	sinks := report.Fanout{report.NewLogSink(log), collector}

	var server *websocket.Server
	if cfg.Listen != "" {
		server = websocket.NewServer(cfg.Listen, cfg.MaxClients, log)
		server.Handle("/metrics", collector.Handler())
		server.SetHealthSource(lister.Stats().GetStats)
		sinks = append(sinks, server)

		go func() {
			if err := server.Start(); err != nil {
				log.Errorf("Report server failed: %v", err)
			}
		}()
	}

	tracker, err := buildTracker(cfg, sinks, log)
	if err != nil {
		return err
	}

	sched := watcher.NewScheduler(watcher.NewCycle(lister, sinks, log), tracker, cfg.Interval, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Infof("Shutting down...")
		sched.Stop()
	}()

	runErr := sched.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Report server shutdown: %v", err)
		}
	}
	return runErr
}
