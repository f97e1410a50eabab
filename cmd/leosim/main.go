package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/leo-topology/core"
	"github.com/signalsfoundry/leo-topology/internal/config"
	"github.com/signalsfoundry/leo-topology/internal/logging"
	"github.com/signalsfoundry/leo-topology/internal/observability"
	"github.com/signalsfoundry/leo-topology/kb"
	"github.com/signalsfoundry/leo-topology/timectrl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "leosim: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, builds the constellation and drives it to completion,
// writing logs and the final link summary to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("leosim", flag.ContinueOnError)
	fs.SetOutput(out)

	configPath := fs.String("config", "", "path to a YAML configuration file")
	planes := fs.Int("planes", 0, "number of orbital planes")
	satsPerPlane := fs.Int("sats-per-plane", 0, "satellites per plane (even)")
	altitude := fs.Float64("altitude-km", 0, "orbital altitude in km [500, 2000]")
	provisionAll := fs.Bool("provision-all", false, "provision every candidate link at construction")
	duration := fs.Duration("duration", 0, "total simulated duration")
	tick := fs.Duration("tick", 0, "simulation tick")
	updateInterval := fs.Duration("update-interval", 0, "simulated time between link updates")
	mode := fs.String("mode", "", "accelerated or realtime")
	metricsAddr := fs.String("metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFormat := fs.String("log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config %q: %w", *configPath, err)
		}
		cfg = loaded
	}

	// Flags given on the command line win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "planes":
			cfg.Constellation.Planes = *planes
		case "sats-per-plane":
			cfg.Constellation.SatellitesPerPlane = *satsPerPlane
		case "altitude-km":
			cfg.Constellation.AltitudeKm = *altitude
		case "provision-all":
			cfg.Constellation.ProvisionAllCandidates = *provisionAll
		case "duration":
			cfg.Simulation.Duration = *duration
		case "tick":
			cfg.Simulation.Tick = *tick
		case "update-interval":
			cfg.Simulation.UpdateInterval = *updateInterval
		case "mode":
			cfg.Simulation.Mode = *mode
		case "metrics-addr":
			cfg.Observability.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
	ctx, runID := logging.EnsureRunID(ctx)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(cfg.TracingConfig()), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewTopologyCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Observability.MetricsAddr, collector, log)
	defer func() {
		if metricsSrv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	store := kb.NewKnowledgeBase()
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventPlatformAdded {
			log.Debug(ctx, "platform registered",
				logging.String("platform_id", ev.Platform.ID),
				logging.String("type", string(ev.Platform.Type)),
			)
		}
	})
	defer unsubscribe()

	netKB := core.NewKnowledgeBase()
	router := core.NewShortestDelayRouter(netKB)

	clockMode := timectrl.RealTime
	if cfg.Accelerated() {
		clockMode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(time.Now().UTC(), cfg.Simulation.Tick, clockMode)

	topo, err := core.NewConstellationTopology(ctx, cfg.ToCore(), netKB, router,
		core.WithClock(clock),
		core.WithLogger(log),
		core.WithMetrics(collector),
		core.WithPlatformStore(store),
	)
	if err != nil {
		return fmt.Errorf("build constellation: %w", err)
	}

	engine, err := core.NewSimulationEngine(topo, clock, cfg.Simulation.UpdateInterval, log)
	if err != nil {
		return err
	}

	log.Info(ctx, "leosim starting",
		logging.String("run_id", runID),
		logging.Int("planes", cfg.Constellation.Planes),
		logging.Int("satellites_per_plane", cfg.Constellation.SatellitesPerPlane),
		logging.Float64("altitude_km", cfg.Constellation.AltitudeKm),
	)
	if err := engine.Run(ctx, cfg.Simulation.Duration); err != nil {
		if !errors.Is(err, context.Canceled) {
			return fmt.Errorf("simulation: %w", err)
		}
		log.Info(ctx, "simulation interrupted", logging.Duration("sim_time", topo.SimTime()))
	}

	printSummary(out, topo, router, store)
	return nil
}

func serveMetrics(addr string, collector *observability.TopologyCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// printSummary writes the final ground bindings and the ground-to-ground
// route.
func printSummary(w io.Writer, topo *core.ConstellationTopology, router *core.ShortestDelayRouter, store *kb.KnowledgeBase) {
	snap := topo.Snapshot()
	fmt.Fprintf(w, "sim_time=%s platforms=%d\n", snap.SimTime, len(store.ListPlatforms()))
	for _, gb := range snap.Ground {
		fmt.Fprintf(w, "ground %-10s -> %-8s plane=%d slot=%d delay=%s elevation=%.1f\n",
			gb.Station, gb.RemoteNode, gb.RemotePlane, gb.CurrentAdjacentSlot, gb.Delay, gb.ElevationDeg)
	}

	stations := topo.GroundStations()
	if len(stations) < 2 {
		return
	}
	src, dst := stations[0].NodeID, stations[1].NodeID
	if route, ok := router.Lookup(src, dst); ok {
		fmt.Fprintf(w, "route %s -> %s next_hop=%s hops=%d delay=%s\n", src, dst, route.NextHop, route.Hops, route.Delay)
	} else {
		fmt.Fprintf(w, "route %s -> %s unreachable\n", src, dst)
	}
}
