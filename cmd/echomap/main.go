// cmd/echomap/main.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// echomap is the navigation daemon: it plans walking routes, monitors
// position fixes against the active route, and streams guidance
// notifications to connected clients over a websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/haptic"
	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
	"github.com/Milad9A/Echo-Map-sub001/pkg/server"
	"github.com/Milad9A/Echo-Map-sub001/pkg/session"

	"golang.org/x/sync/errgroup"
)

var (
	logLevel = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir   = flag.String("logdir", "", "log file directory")

	listenAddr = flag.String("addr", ":8111", "address to serve the control API on")
	routerURL  = flag.String("router", "https://router.project-osrm.org", "OSRM-compatible routing service URL")
	geocodeURL = flag.String("geocoder", "https://nominatim.openstreetmap.org", "Nominatim-compatible geocoding service URL")

	routeCacheAge = flag.Duration("routecache", 15*time.Minute, "maximum age of cached routes (0 disables)")
	stallAfter    = flag.Duration("stall", 30*time.Second, "how long without a fix before warning the user")

	deviationTolerance = flag.Float64("tolerance", 50, "off-route tolerance in meters")
	arrivalRadius      = flag.Float64("arrival", 10, "arrival radius in meters")
	intensity          = flag.Float64("intensity", 0.8, "default haptic intensity (0..1)")
)

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)

	client := routing.NewClient(*routerURL, *geocodeURL, 20*time.Second, lg)
	var planner routing.Planner = client
	if *routeCacheAge > 0 {
		planner = routing.NewCachingPlanner(client, *routeCacheAge, lg)
	}
	geocoder := routing.NewCachingGeocoder(client, 64, time.Hour)

	cfg := session.DefaultConfig()
	cfg.Deviation.OnRouteToleranceMeters = *deviationTolerance
	cfg.ArrivalRadiusMeters = *arrivalRadius
	cfg.Intensity = *intensity

	// The daemon has no vibration motor of its own; patterns are
	// reported to clients through the notification stream and played
	// there. Plugging in a local Output is a build-time decision for
	// embedded deployments.
	var output haptic.Output

	mgr := server.NewManager(planner, geocoder, output, cfg, lg)
	mgr.StallAfter = *stallAfter
	srv := server.NewServer(mgr, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var eg errgroup.Group
	eg.Go(func() error {
		lg.Infof("listening on %s", *listenAddr)
		return srv.Listen(*listenAddr)
	})
	eg.Go(func() error {
		<-ctx.Done()
		lg.Info("shutting down")
		if err := mgr.Stop(); err != nil && err != server.ErrNoActiveSession {
			lg.Errorf("stopping session: %v", err)
		}
		return srv.Shutdown()
	})

	if err := eg.Wait(); err != nil {
		lg.Errorf("%v", err)
		fmt.Fprintf(os.Stderr, "echomap: %v\n", err)
		os.Exit(1)
	}
}
